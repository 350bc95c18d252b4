package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/patenthound/patenthound/internal/api/response"
)

// CronSecret guards scheduler endpoints with a shared-secret header.
// The external cron service sends the secret in X-Cron-Secret.
func CronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Cron-Secret")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHORIZED", "Invalid or missing cron secret", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
