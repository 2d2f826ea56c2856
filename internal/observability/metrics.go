package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geodata"

// Metrics holds the Prometheus collectors for the cache, sources and history.
type Metrics struct {
	// Cache metrics.
	CacheRequests *prometheus.CounterVec // labels: result={hit,miss,error}
	CacheWrites   *prometheus.CounterVec // labels: outcome={ok,error,skipped}

	// Source metrics.
	SourceFetches  *prometheus.CounterVec   // labels: source, outcome={ok,partial,error}
	SourceDuration *prometheus.HistogramVec // labels: source

	// Dataset metrics.
	FeaturesDropped      *prometheus.CounterVec // labels: dataset
	FeaturesDeduplicated *prometheus.CounterVec // labels: dataset
	DatasetDegraded      *prometheus.GaugeVec   // labels: dataset

	HistoryAppends *prometheus.CounterVec // labels: sink, outcome={ok,error,skipped}
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache write-backs by outcome.",
		}, []string{"outcome"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Upstream source fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of one upstream source fetch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),
		FeaturesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_dropped_total",
			Help:      "Records dropped during transform for missing position or measurement.",
		}, []string{"dataset"}),
		FeaturesDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_deduplicated_total",
			Help:      "Features removed by grid-cell deduplication.",
		}, []string{"dataset"}),
		DatasetDegraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_degraded",
			Help:      "1 when the last computation of the dataset had a failing source.",
		}, []string{"dataset"}),
		HistoryAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appends_total",
			Help:      "Historical appends by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheRequests,
		m.CacheWrites,
		m.SourceFetches,
		m.SourceDuration,
		m.FeaturesDropped,
		m.FeaturesDeduplicated,
		m.DatasetDegraded,
		m.HistoryAppends,
	}
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
