package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"dsconnector/pkg/httpx"
)

// Middleware enforces a per-client request limit, keyed by remote IP.
// X-Forwarded-For is trusted because the connector sits behind its own
// reverse proxy in every deployment profile.
func Middleware(limiter Limiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			d := limiter.Allow(clientKey(r), limit)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retryIn := int(time.Until(d.ResetAt).Seconds()) + 1
				if retryIn < 1 {
					retryIn = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryIn))
				httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
