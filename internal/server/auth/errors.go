package auth

import "errors"

var (
	ErrAuthHeaderMissing   = errors.New("authorization header is expected")
	ErrAuthHeaderMalformed = errors.New("authorization header must be bearer token")
	ErrTokenInvalid        = errors.New("token is invalid")
	ErrKeyNotFound         = errors.New("unable to find the appropriate key")
	// ErrKeySetUnavailable means the signing keys could not be fetched at all.
	ErrKeySetUnavailable = errors.New("signing key set unavailable")
	ErrPermissionDenied  = errors.New("permission not found")
)
