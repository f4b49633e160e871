package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/modelplex/ollamagw/internal/corrid"
)

// RequestLoggingMiddleware logs incoming HTTP request metadata if debug
// logging is enabled. It never logs the request body (I7/P6).
func RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if slog.Default().Enabled(r.Context(), slog.LevelDebug) {
			slog.DebugContext(r.Context(), "incoming HTTP request",
				"correlation_id", corrid.FromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}

		next.ServeHTTP(w, r)

		slog.Info("request complete",
			"correlation_id", corrid.FromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// CorrelationIDMiddleware attaches a fresh correlation id to the
// request context (spec.md §2.7) so every downstream log record for
// this request can be tied together. It has no business effect.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := corrid.New()
		ctx := corrid.WithID(r.Context(), id)
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
