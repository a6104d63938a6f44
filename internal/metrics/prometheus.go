// Package metrics exposes Prometheus metrics for the sales dashboard.
//
// A nil *Manager is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Record source
	fetchDuration  prometheus.Histogram
	fetchFailures  *prometheus.CounterVec
	recordsFetched prometheus.Counter
	lastFetchSize  prometheus.Gauge

	// Pipeline
	builds       *prometheus.CounterVec
	lastFiltered prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on its own registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sales_dashboard",
		histogramBuckets: prometheus.DefBuckets,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of record source fetches, including decoding",
		Buckets:   m.histogramBuckets,
	})

	m.fetchFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "source",
		Name:      "fetch_failures_total",
		Help:      "Record source fetches that failed, by reason",
	}, []string{"reason"})

	m.recordsFetched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "source",
		Name:      "records_fetched_total",
		Help:      "Transaction records decoded from the record source",
	})

	m.lastFetchSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "source",
		Name:      "last_fetch_records",
		Help:      "Records returned by the most recent successful fetch",
	})

	m.builds = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "builds_total",
		Help:      "Dashboard render cycles by outcome",
	}, []string{"outcome"})

	m.lastFiltered = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "last_filtered_records",
		Help:      "Records left after the seller filter in the most recent build",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// ObserveFetch records a successful fetch.
func (m *Manager) ObserveFetch(duration time.Duration, records int) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(duration.Seconds())
	m.recordsFetched.Add(float64(records))
	m.lastFetchSize.Set(float64(records))
}

// FetchFailed records a failed fetch. reason is a short fixed label such as
// "transport", "status" or "decode".
func (m *Manager) FetchFailed(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(duration.Seconds())
	m.fetchFailures.WithLabelValues(reason).Inc()
}

func (m *Manager) ObserveBuild(outcome string, filtered int) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.lastFiltered.Set(float64(filtered))
	}
}

func (m *Manager) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler serves the manager's registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
