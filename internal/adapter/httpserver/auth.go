package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// BearerAuth enforces a single static shared-secret bearer token via
// constant-time comparison.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if authz == "" {
				writeError(w, domain.ErrUnauthorized, "")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, domain.ErrForbidden, "")
				return
			}
			presented := strings.TrimPrefix(authz, prefix)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, domain.ErrForbidden, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
