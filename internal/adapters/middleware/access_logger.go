package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type AccessLogger struct {
	logger          zerolog.Logger
	logHealthChecks bool
}

func NewAccessLogger(logger zerolog.Logger, logHealthChecks bool) *AccessLogger {
	return &AccessLogger{
		logger:          logger.With().Str("component", "http_access").Logger(),
		logHealthChecks: logHealthChecks,
	}
}

func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.logHealthChecks && isOperationalPath(r.URL.Path) {
			next.ServeHTTP(w, r)

			return
		}

		startTime := time.Now()
		wrapped := NewResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(startTime)

		logEvent := a.logger.Info()
		if wrapped.StatusCode() >= http.StatusInternalServerError {
			logEvent = a.logger.Error()
		}

		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Int("status_code", wrapped.StatusCode()).
			Int64("response_size_bytes", wrapped.BytesWritten()).
			Dur("duration", duration)

		if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
			logEvent.Str("request_id", requestID)
		}

		logEvent.Msg("request completed")
	})
}

func isOperationalPath(path string) bool {
	return strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/metrics")
}
