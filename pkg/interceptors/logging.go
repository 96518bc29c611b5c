package interceptors

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewLoggingInterceptor logs one structured line per request with its size,
// status and duration. Wire it after chi's RequestID middleware.
func NewLoggingInterceptor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			fields := appendLoggerFields(r,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", duration.String(),
				"duration_ms", duration.Milliseconds(),
				"request_size_bytes", r.ContentLength,
				"response_size_bytes", ww.BytesWritten(),
			)

			switch {
			case ww.Status() >= http.StatusInternalServerError:
				logger.ErrorContext(r.Context(), "Request failed", fields...)
			case ww.Status() >= http.StatusBadRequest:
				logger.WarnContext(r.Context(), "Request rejected", fields...)
			default:
				logger.InfoContext(r.Context(), "Request completed", fields...)
			}
		})
	}
}

func appendLoggerFields(r *http.Request, base ...any) []any {
	if requestID := chimiddleware.GetReqID(r.Context()); requestID != "" {
		base = append(base, "request_id", requestID)
	}
	return base
}
