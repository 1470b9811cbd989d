// Package metrics exposes the daemon's admission and pipeline counters to
// Prometheus. This is ambient observability, not part of the wire
// protocol, and its route is reachable only from the admin plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	DBCacheSize   prometheus.Gauge
	ConnCacheSize prometheus.Gauge

	PipelineRequestsTotal prometheus.Counter
	PipelineErrorsTotal   *prometheus.CounterVec
	IOCompletionsTotal    *prometheus.CounterVec
}

// New creates and registers the daemon's metric collectors under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		DBCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_cache_size",
			Help:      "Current number of memory-resident databases.",
		}),
		ConnCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conn_cache_size",
			Help:      "Current number of pinned connections.",
		}),
		PipelineRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Total number of pipeline HTTP requests handled.",
		}),
		PipelineErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Total number of StreamResult errors, by code.",
		}, []string{"code"}),
		IOCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_completions_total",
			Help:      "Total number of I/O engine completions, by kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.DBCacheSize,
		m.ConnCacheSize,
		m.PipelineRequestsTotal,
		m.PipelineErrorsTotal,
		m.IOCompletionsTotal,
	)
	return m
}

// Handler returns the http.Handler that serves the Prometheus exposition
// format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePipelineRequest records one POST /v2/pipeline request.
func (m *Metrics) ObservePipelineRequest() {
	m.PipelineRequestsTotal.Inc()
}

// ObservePipelineError records one StreamResult error, by taxonomy code.
func (m *Metrics) ObservePipelineError(code string) {
	m.PipelineErrorsTotal.WithLabelValues(code).Inc()
}

// ObserveIOCompletion records one ioengine completion, by kind
// ("accept", "recv", "send").
func (m *Metrics) ObserveIOCompletion(kind string) {
	m.IOCompletionsTotal.WithLabelValues(kind).Inc()
}

// SetCacheSizes updates the resource manager's gauge pair after a
// pipeline request.
func (m *Metrics) SetCacheSizes(dbCache, connCache int) {
	m.DBCacheSize.Set(float64(dbCache))
	m.ConnCacheSize.Set(float64(connCache))
}
