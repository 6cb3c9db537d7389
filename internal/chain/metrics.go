package chain

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Submissions       *prometheus.CounterVec
	SettlementLatency *prometheus.HistogramVec
	FeePaid           prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_submissions_total",
				Help: "Settlement submissions by operation and outcome.",
			},
			[]string{"op", "status"},
		),
		SettlementLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_latency_seconds",
				Help:    "Time from first submission attempt to final outcome.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"op"},
		),
		FeePaid: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_fee_paid",
				Help:    "Fee actually paid per confirmed submission, in native token.",
				Buckets: prometheus.ExponentialBuckets(0.00001, 10, 8),
			},
		),
	}

	registry.MustRegister(m.Submissions, m.SettlementLatency, m.FeePaid)
	return m
}
