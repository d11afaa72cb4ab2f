package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Permissions recognised by the drinks API, in resource:verb form.
const (
	PermGetDrinksDetail = "get:drinks-detail"
	PermPostDrinks      = "post:drinks"
	PermPatchDrinks     = "patch:drinks"
	PermDeleteDrinks    = "delete:drinks"
)

// AuthContext is what a verified token grants for the lifetime of one request.
type AuthContext struct {
	Subject     string
	permissions map[string]struct{}
}

func NewAuthContext(subject string, permissions []string) AuthContext {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return AuthContext{Subject: subject, permissions: set}
}

func (a AuthContext) Has(permission string) bool {
	_, ok := a.permissions[permission]
	return ok
}

// Permissions returns the granted permissions in sorted order.
func (a AuthContext) Permissions() []string {
	out := make([]string, 0, len(a.permissions))
	for p := range a.permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Authorize reports whether ac carries the required permission.
func Authorize(required string, ac AuthContext) error {
	if !ac.Has(required) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, required)
	}
	return nil
}

type contextKey string

const authContextKey contextKey = "authContext"

func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(AuthContext)
	return ac, ok
}
