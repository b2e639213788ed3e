package spancache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the span cache.
type Metrics struct {
	ingestedTotal *prometheus.CounterVec
	mergedTotal   *prometheus.CounterVec
	expiredTotal  *prometheus.CounterVec
	evictedTotal  *prometheus.CounterVec
	cacheItems    *prometheus.GaugeVec
	cacheBytes    *prometheus.GaugeVec
}

// NewMetrics creates the cache collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ingestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spancache_spans_ingested_total",
				Help: "Total number of span updates accepted into the cache",
			},
			[]string{"environment"},
		),
		mergedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spancache_spans_merged_total",
				Help: "Total number of span updates merged into an existing record",
			},
			[]string{"environment"},
		),
		expiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spancache_spans_expired_total",
				Help: "Total number of records removed by TTL expiry",
			},
			[]string{"environment"},
		),
		evictedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spancache_spans_evicted_total",
				Help: "Total number of records removed by capacity eviction",
			},
			[]string{"environment"},
		),
		cacheItems: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spancache_items",
				Help: "Live records in the cache after the last retention sweep",
			},
			[]string{"environment"},
		),
		cacheBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spancache_bytes",
				Help: "Serialized bytes held by the cache after the last retention sweep",
			},
			[]string{"environment"},
		),
	}
}

func (m *Metrics) spansIngested(env string, count, merges int) {
	m.ingestedTotal.WithLabelValues(env).Add(float64(count))
	if merges > 0 {
		m.mergedTotal.WithLabelValues(env).Add(float64(merges))
	}
}

func (m *Metrics) spansExpired(env string, count int) {
	m.expiredTotal.WithLabelValues(env).Add(float64(count))
}

func (m *Metrics) spansEvicted(env string, count int) {
	m.evictedTotal.WithLabelValues(env).Add(float64(count))
}

func (m *Metrics) setCacheSize(env string, items int, bytes int64) {
	m.cacheItems.WithLabelValues(env).Set(float64(items))
	m.cacheBytes.WithLabelValues(env).Set(float64(bytes))
}
