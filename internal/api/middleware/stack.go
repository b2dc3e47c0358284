// Package middleware provides the HTTP ingress stack shared by every
// route the REST Adapter registers, grounded on the teacher's
// internal/api/middleware/stack.go composition order.
package middleware

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pixoo/daemon/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableCORS     bool
	AllowedOrigins []string

	EnableSecurityHeaders bool

	EnableRateLimit    bool
	RateLimitRPS       int
	RateLimitWhitelist []string
}

// NewRouter constructs a chi router with the canonical middleware
// stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	if cfg.EnableCORS {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders)
	}
	r.Use(log.HTTPMiddleware())
	if cfg.EnableRateLimit {
		r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitWhitelist))
	}
}
