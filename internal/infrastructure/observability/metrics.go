// Package observability exposes Prometheus metrics for Course Match Hub.
// Metrics are registered once on a dedicated registry so tests can create
// isolated instances without double-registration panics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus instruments for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Fulfillment
	ComputationsTotal   *prometheus.CounterVec
	ComputationDuration prometheus.Histogram
	MatchesPerResult    prometheus.Histogram
	PartitionsSkipped   prometheus.Counter
	LeaseContention     prometheus.Counter

	// Payments
	PaymentsTotal    *prometheus.CounterVec
	WebhookDelivered *prometheus.CounterVec

	// Status polling
	StatusChecksTotal *prometheus.CounterVec
	StatusCacheHits   prometheus.Counter
	StatusCacheMisses prometheus.Counter

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry, pre-populated
// with the standard Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ComputationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "fulfillment",
			Name:      "computations_total",
			Help:      "Qualification computations by category and outcome.",
		}, []string{"category", "outcome"}),

		ComputationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coursematch",
			Subsystem: "fulfillment",
			Name:      "computation_duration_seconds",
			Help:      "Time spent scanning the catalog for one key.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		MatchesPerResult: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coursematch",
			Subsystem: "fulfillment",
			Name:      "matches_per_result",
			Help:      "Matching programmes per computed result.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		PartitionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "fulfillment",
			Name:      "partitions_skipped_total",
			Help:      "Catalog partitions skipped because they were absent.",
		}),

		LeaseContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "fulfillment",
			Name:      "lease_contention_total",
			Help:      "Computations abandoned because another worker held the lease.",
		}),

		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "payment",
			Name:      "payments_total",
			Help:      "Payment records by terminal outcome.",
		}, []string{"outcome"}),

		WebhookDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "payment",
			Name:      "webhook_deliveries_total",
			Help:      "Gateway webhook deliveries by disposition.",
		}, []string{"disposition"}),

		StatusChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "status",
			Name:      "checks_total",
			Help:      "Status checks by reported state.",
		}, []string{"state"}),

		StatusCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "status",
			Name:      "cache_hits_total",
			Help:      "Status checks answered from the ready cache.",
		}),

		StatusCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "status",
			Name:      "cache_misses_total",
			Help:      "Status checks that fell through to the durable store.",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursematch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "code"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coursematch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coursematch",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveComputation records one finished computation.
func (m *Metrics) ObserveComputation(category string, err error, duration time.Duration, matches int) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ComputationsTotal.WithLabelValues(category, outcome).Inc()
	m.ComputationDuration.Observe(duration.Seconds())
	if err == nil {
		m.MatchesPerResult.Observe(float64(matches))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
