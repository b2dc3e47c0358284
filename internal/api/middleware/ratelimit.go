package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns a per-IP sliding-window rate limiter built on
// httprate, grounded on the teacher's
// internal/api/middleware/ratelimit.go (whitelist check wrapping the
// httprate limiter, custom 429 body).
func RateLimit(rps int, whitelist []string) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	allow := make(map[string]bool, len(whitelist))
	for _, ip := range whitelist {
		allow[ip] = true
	}

	limit := httprate.Limit(
		rps,
		time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitHandler),
	)

	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allow) > 0 && allow[clientIP(r)] {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func rateLimitHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
