package middleware

import (
	"net/http"

	"github.com/nkiryanov/blogauth/internal/handlers/render"
	"github.com/nkiryanov/blogauth/internal/handlers/userctx"
)

// Allow only principals with the role
// Has to run after AuthMiddleware
func RoleMiddleware(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !p.HasRole(role) {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
