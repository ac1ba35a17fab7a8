package infrastructure

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "device_manager"

// Metrics aggregates the Prometheus instruments for both processes. The
// worker records outbox outcomes; the command service records HTTP requests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec

	OutboxProcessedTotal    prometheus.Counter
	OutboxFailedTotal       prometheus.Counter
	OutboxDeadLetteredTotal prometheus.Counter
	OutboxCircuitOpenTotal  prometheus.Counter
	SagaCompletedTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		OutboxProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_processed_total",
			Help:      "Outbox events processed successfully.",
		}),
		OutboxFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox event processing failures that consumed an attempt.",
		}),
		OutboxDeadLetteredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_dead_lettered_total",
			Help:      "Outbox events dead-lettered after exhausting the retry budget.",
		}),
		OutboxCircuitOpenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_circuit_open_skips_total",
			Help:      "Outbox events skipped because a circuit breaker refused the call.",
		}),
		SagaCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "saga_finished_total",
			Help:      "Sagas by terminal status.",
		}, []string{"saga_type", "status"}),
	}
}

// Handler exposes the metrics registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
