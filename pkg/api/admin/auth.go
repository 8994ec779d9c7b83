package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth rejects every request with 401 unless it carries
// "Authorization: Bearer <token>" matching the configured token.
// When no token is configured the admin surface is unguarded, per
// section 6's "when one is configured".
func (rt *routes) bearerAuth(next http.Handler) http.Handler {
	if rt.deps.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		got := strings.TrimPrefix(header, prefix)
		if subtle.ConstantTimeCompare([]byte(got), []byte(rt.deps.Token)) != 1 {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
