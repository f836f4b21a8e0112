package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for sync and search.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SyncAttempts    *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	IndexedRecords  prometheus.Gauge
	VendorRequests  *prometheus.CounterVec
	SearchLatency   prometheus.Histogram
	SearchCacheHits *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SyncAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsearch_sync_attempts_total",
			Help: "Knowledge sync attempts by trigger and outcome",
		}, []string{"trigger", "outcome"}),

		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kbsearch_sync_duration_seconds",
			Help:    "Duration of full knowledge syncs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		IndexedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kbsearch_indexed_records",
			Help: "Number of records in the active search index",
		}),

		VendorRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsearch_vendor_requests_total",
			Help: "Vendor API page requests by outcome",
		}, []string{"outcome"}),

		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kbsearch_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		SearchCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsearch_search_cache_total",
			Help: "Search result cache lookups by result",
		}, []string{"result"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSync records one sync attempt.
func (m *Metrics) ObserveSync(trigger, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SyncAttempts.WithLabelValues(trigger, outcome).Inc()
	if outcome == "success" || outcome == "failure" {
		m.SyncDuration.Observe(elapsed.Seconds())
	}
}

// SetIndexedRecords updates the active record gauge
func (m *Metrics) SetIndexedRecords(n int) {
	if m == nil {
		return
	}
	m.IndexedRecords.Set(float64(n))
}

// ObserveVendorRequest counts a vendor page request
func (m *Metrics) ObserveVendorRequest(outcome string) {
	if m == nil {
		return
	}
	m.VendorRequests.WithLabelValues(outcome).Inc()
}

// ObserveSearch records search latency and whether the cache answered.
func (m *Metrics) ObserveSearch(elapsed time.Duration, cacheResult string) {
	if m == nil {
		return
	}
	m.SearchLatency.Observe(elapsed.Seconds())
	if cacheResult != "" {
		m.SearchCacheHits.WithLabelValues(cacheResult).Inc()
	}
}
