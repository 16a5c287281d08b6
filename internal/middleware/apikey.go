package middleware

import (
	"crypto/subtle"
	"net/http"
)

const APIKeyHeader = "X-Api-Key"

// RequireAPIKey rejects requests whose X-Api-Key does not match key. An
// empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
