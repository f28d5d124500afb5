package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/idx"
)

// HTTPMiddleware logs requests and attaches a contextual logger into request
// context. The X-Request-ID sent by apiclient is reused and echoed back so
// client and server log lines correlate.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.NewRequestID()
			}

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)

			w.Header().Set("X-Request-ID", reqID)
			r = r.WithContext(withScope(r.Context(), scope{logger: logger, requestID: reqID}))
			next.ServeHTTP(rw, r)

			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
