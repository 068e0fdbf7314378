package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// Status-API request budget. The API is a low-volume dashboard surface; one
// bucket per caller keeps a hot poller from draining the shared redis
// limiter the venue clients also run on.
const (
	requestLimit  = 60
	requestWindow = time.Minute
)

// RateLimit caps status-API requests per caller over the shared limiter.
// Limiter failures fail open: losing redis must not take the status surface
// down with it.
func RateLimit(limiter domain.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:status:" + callerKey(r)
			allowed, err := limiter.Allow(r.Context(), key, requestLimit, requestWindow)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", strconv.Itoa(int(requestWindow/time.Second)))
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey names the bucket owner: the presented credential when there is
// one, so dashboards behind one proxy get separate buckets, else the remote
// host. The credential is hashed; raw keys never become redis keys.
func callerKey(r *http.Request) string {
	if cred := clientCredential(r); cred != "" {
		sum := sha256.Sum256([]byte(cred))
		return hex.EncodeToString(sum[:8])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
