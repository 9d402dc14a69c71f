// Package metrics provides Prometheus instrumentation for the crawl workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all crawl metrics.
	Namespace = "guildcrawl"

	// Subsystem is the subsystem for worker metrics.
	Subsystem = "crawl"
)

// Crawl holds all Prometheus metrics emitted by workers.
type Crawl struct {
	// Page metrics
	PagesTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Item metrics
	ItemsTotal *prometheus.CounterVec

	// Frontier metrics
	RequestsEnqueued *prometheus.CounterVec
	RequestsFiltered *prometheus.CounterVec
	FrontierSize     prometheus.Gauge

	// Proxy metrics
	ProxyOutcomes *prometheus.CounterVec
	Denials       prometheus.Counter
	FatalFailures prometheus.Counter

	// Worker metrics
	WorkersActive prometheus.Gauge
}

// New creates and registers all crawl metrics on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Crawl {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Crawl{}

	m.initPageMetrics(factory)
	m.initFrontierMetrics(factory)
	m.initProxyMetrics(factory)

	return m
}

func (m *Crawl) initPageMetrics(factory promauto.Factory) {
	m.PagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "pages_total",
			Help:      "Fetched pages by classification",
		},
		[]string{"kind"},
	)

	m.FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single fetch attempt",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"state"},
	)

	m.ItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items_total",
			Help:      "Upserted server records by new/seen classification",
		},
		[]string{"classification"},
	)

	m.WorkersActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "workers_active",
			Help:      "Number of running workers in this process",
		},
	)
}

func (m *Crawl) initFrontierMetrics(factory promauto.Factory) {
	m.RequestsEnqueued = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "requests_enqueued_total",
			Help:      "Requests accepted into the frontier by source",
		},
		[]string{"source"},
	)

	m.RequestsFiltered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "requests_filtered_total",
			Help:      "Requests dropped as duplicates by source",
		},
		[]string{"source"},
	)

	m.FrontierSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "frontier_size",
			Help:      "Pending requests in the shared frontier",
		},
	)
}

func (m *Crawl) initProxyMetrics(factory promauto.Factory) {
	m.ProxyOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "proxy_outcomes_total",
			Help:      "Fetch attempts by terminal state and mode",
		},
		[]string{"state", "mode"},
	)

	m.Denials = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "denials_total",
			Help:      "Anti-bot denial pages detected",
		},
	)

	m.FatalFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fatal_failures_total",
			Help:      "Requests abandoned without retry",
		},
	)
}

// RecordPage records a classified page.
func (m *Crawl) RecordPage(kind string) {
	m.PagesTotal.WithLabelValues(kind).Inc()
}

// RecordFetch records one fetch attempt.
func (m *Crawl) RecordFetch(state string, proxied bool, seconds float64) {
	mode := "direct"
	if proxied {
		mode = "proxy"
	}
	m.ProxyOutcomes.WithLabelValues(state, mode).Inc()
	m.FetchDuration.WithLabelValues(state).Observe(seconds)
}

// RecordItem records one upserted record.
func (m *Crawl) RecordItem(classification string) {
	m.ItemsTotal.WithLabelValues(classification).Inc()
}

// RecordPush records the result of a frontier push.
func (m *Crawl) RecordPush(source string, accepted bool) {
	if accepted {
		m.RequestsEnqueued.WithLabelValues(source).Inc()
		return
	}
	m.RequestsFiltered.WithLabelValues(source).Inc()
}

// RecordDenial records a denial page.
func (m *Crawl) RecordDenial() {
	m.Denials.Inc()
}

// RecordFatal records an abandoned request.
func (m *Crawl) RecordFatal() {
	m.FatalFailures.Inc()
}

// SetFrontierSize sets the frontier gauge.
func (m *Crawl) SetFrontierSize(n int64) {
	m.FrontierSize.Set(float64(n))
}

// WorkerStarted increments the active worker gauge.
func (m *Crawl) WorkerStarted() {
	m.WorkersActive.Inc()
}

// WorkerStopped decrements the active worker gauge.
func (m *Crawl) WorkerStopped() {
	m.WorkersActive.Dec()
}
