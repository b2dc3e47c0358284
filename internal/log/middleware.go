package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware logs each request at Info level with method, path,
// status and duration, matching the teacher's request-logging shape.
func HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := RequestIDFromContext(r.Context())
			if reqID == "" {
				reqID = NewRequestID()
				r = r.WithContext(ContextWithRequestID(r.Context(), reqID))
			}
			w.Header().Set("X-Request-ID", reqID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			WithComponent("http").Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}
