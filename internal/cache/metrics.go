package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values for the "section" label.
const (
	sectionResponse = "response"
	sectionToolCall = "toolcall"
	sectionContext  = "context"
)

// cacheMetrics holds the Prometheus metrics owned by one Cache instance.
// Metrics are registered against an injectable Registerer so unit tests can
// use a fresh registry without polluting the default one.
type cacheMetrics struct {
	// hits counts lookups that found an entry, partitioned by section.
	hits *prometheus.CounterVec

	// misses counts lookups that found nothing, partitioned by section.
	misses *prometheus.CounterVec

	// evictions counts entries removed by capacity trims, partitioned by section.
	evictions *prometheus.CounterVec
}

// newCacheMetrics registers cache metrics against reg.
func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	factory := promauto.With(reg)

	return &cacheMetrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfai",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache lookups that found an entry, partitioned by cache section.",
		}, []string{"section"}),

		misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfai",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache lookups that found nothing, partitioned by cache section.",
		}, []string{"section"}),

		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfai",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total entries removed by capacity trims, partitioned by cache section.",
		}, []string{"section"}),
	}
}

// observe records a hit or miss for the given section.
func (m *cacheMetrics) observe(section string, hit bool) {
	if hit {
		m.hits.WithLabelValues(section).Inc()
		return
	}
	m.misses.WithLabelValues(section).Inc()
}
