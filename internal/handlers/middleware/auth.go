package middleware

import (
	"net/http"

	"github.com/nkiryanov/blogauth/internal/handlers/render"
	"github.com/nkiryanov/blogauth/internal/handlers/userctx"
	"github.com/nkiryanov/blogauth/internal/models"
)

type authenticator interface {
	Authenticate(r *http.Request) (models.Principal, error)
}

// Reject requests without valid access token
// Principal is put to the request context, see userctx
func AuthMiddleware(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.Authenticate(r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
