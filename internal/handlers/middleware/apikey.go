package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/nkiryanov/blogauth/internal/handlers/render"
)

const APIKeyHeader = "X-API-KEY"

// Guard for endpoints called by trusted internal servers only
// Empty key disables the guard
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				render.ServiceError(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
