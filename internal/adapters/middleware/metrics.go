package middleware

import (
	"net/http"
	"strconv"

	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

type MetricsMiddleware struct {
	metrics *infrastructure.Metrics
}

func NewMetricsMiddleware(metrics *infrastructure.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{
		metrics: metrics,
	}
}

func (m *MetricsMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := NewResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		m.metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			r.URL.Path,
			strconv.Itoa(wrapped.StatusCode()),
		).Inc()
	})
}
