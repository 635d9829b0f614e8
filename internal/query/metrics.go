package query

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache slot reuse. A nil *Metrics disables collection.
type Metrics struct {
	Hits   prometheus.Counter
	Misses prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Lookups served from an existing cache slot",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Lookups that created a new cache slot and fetched",
		}),
	}
	reg.MustRegister(m.Hits, m.Misses)
	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}
