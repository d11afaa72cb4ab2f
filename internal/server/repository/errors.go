package repository

import "errors"

var (
	// ErrNotFound is returned when no drink has the requested id.
	ErrNotFound = errors.New("drink not found")
	// ErrConflict indicates a unique constraint violation (duplicate id or title).
	ErrConflict = errors.New("drink conflicts with an existing record")
)
