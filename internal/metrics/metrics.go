// Package metrics collects Prometheus counters and histograms for Terrain
// API calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and collectors. A nil *Metrics is valid and
// turns every method into a no-op, so the client can run unmetered.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
	submissions    *prometheus.CounterVec
}

// New constructs a metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrain",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total Terrain API requests by endpoint and response status.",
		},
		[]string{"endpoint", "status"},
	)
	requestSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "terrain",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Terrain API request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)
	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrain",
			Subsystem: "analyses",
			Name:      "submissions_total",
			Help:      "Total analysis submissions by outcome.",
		},
		[]string{"result"},
	)

	registry.MustRegister(requestsTotal, requestSeconds, submissions)

	return &Metrics{
		registry:       registry,
		requestsTotal:  requestsTotal,
		requestSeconds: requestSeconds,
		submissions:    submissions,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one API request with its response status (an HTTP
// status code, or "transport_error" when no response was produced).
func (m *Metrics) ObserveRequest(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	seconds := duration.Seconds()
	if seconds < 0 {
		return
	}
	m.requestSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// IncSubmission records one submission outcome ("ok" or "error").
func (m *Metrics) IncSubmission(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.submissions.WithLabelValues(result).Inc()
}
