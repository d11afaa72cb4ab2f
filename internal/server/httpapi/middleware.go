package httpapi

import (
	"net/http"

	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
)

// requirePermission verifies the bearer token and checks that it grants
// permission before next runs.
func (r *Router) requirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, err := auth.ParseAuthorizationHeader(req.Header.Get("Authorization"))
			if err != nil {
				r.fail(w, req, err)
				return
			}
			ac, err := r.verifier.Verify(req.Context(), token)
			if err != nil {
				r.fail(w, req, err)
				return
			}
			if err := auth.Authorize(permission, ac); err != nil {
				r.fail(w, req, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(auth.WithAuthContext(req.Context(), ac)))
		})
	}
}
