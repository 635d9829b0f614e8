package cart

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the cart size into prometheus gauges via the store's
// own change notifications.
type Metrics struct {
	Lines prometheus.Gauge
	Units prometheus.Gauge
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Lines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_lines",
			Help: "Distinct items currently in the cart",
		}),
		Units: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_units",
			Help: "Total units across all cart lines",
		}),
	}
	reg.MustRegister(m.Lines, m.Units)
	return m
}

// Observe tracks s until the returned cancel runs. Snapshots arriving
// out of order are dropped by seq so the gauges never regress to an
// older cart state.
func (m *Metrics) Observe(s *Store) (cancel func()) {
	var mu sync.Mutex
	var last uint64

	update := func(seq uint64, lines []Line) {
		mu.Lock()
		defer mu.Unlock()
		if seq < last {
			return
		}
		last = seq

		units := 0
		for _, l := range lines {
			units += l.Quantity
		}
		m.Lines.Set(float64(len(lines)))
		m.Units.Set(float64(units))
	}

	update(0, s.Lines())
	return s.Subscribe(update)
}
