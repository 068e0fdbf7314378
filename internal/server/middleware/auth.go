package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the status API with a single static credential, accepted as
// either "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty
// configured key disables the check. CORS preflights pass through: browsers
// do not attach credentials to OPTIONS.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			cred := clientCredential(r)
			if subtle.ConstantTimeCompare([]byte(cred), []byte(apiKey)) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientCredential extracts the caller's key from the Bearer scheme or the
// X-API-Key header. The rate limiter keys its buckets on the same identity.
func clientCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, rest, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
