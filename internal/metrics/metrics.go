package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricefeed"

// IngestMetrics records refresh cycle health. It satisfies the pipeline's
// cycle observer.
type IngestMetrics struct {
	cycles         *prometheus.CounterVec
	marketOutcomes *prometheus.CounterVec
	storedRecords  *prometheus.GaugeVec
	cycleDuration  prometheus.Histogram
}

func New(registerer prometheus.Registerer) (*IngestMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &IngestMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Refresh cycles by status.",
		}, []string{"status"}),
		marketOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_outcomes_total",
			Help:      "Per-market cycle outcomes by final state.",
		}, []string{"market", "state"}),
		storedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_records",
			Help:      "Delivery days stored by the last successful replace of each market.",
		}, []string{"market"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of refresh cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
	}

	collectors := []prometheus.Collector{m.cycles, m.marketOutcomes, m.storedRecords, m.cycleDuration}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *IngestMetrics) ObserveMarket(market string, state string, records int) {
	if m == nil {
		return
	}
	m.marketOutcomes.WithLabelValues(market, state).Inc()
	if state == "done" {
		m.storedRecords.WithLabelValues(market).Set(float64(records))
	}
}

func (m *IngestMetrics) ObserveCycle(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}
