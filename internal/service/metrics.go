package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationLatency  *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	CacheInvalidation *prometheus.CounterVec
	OrdersExpired     prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_operations_total",
				Help: "Lifecycle operations by name and outcome.",
			},
			[]string{"op", "status"},
		),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trading_operation_latency_seconds",
				Help:    "End-to-end lifecycle operation latency, ledger wait included.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"op"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_cache_lookups_total",
				Help: "Read-through cache lookups by resource family and result.",
			},
			[]string{"family", "result"},
		),
		CacheInvalidation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_cache_invalidations_total",
				Help: "Cache invalidation attempts by result.",
			},
			[]string{"result"},
		),
		OrdersExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trading_orders_expired_total",
				Help: "Orders moved to expired by the sweep.",
			},
		),
	}

	registry.MustRegister(
		m.Operations,
		m.OperationLatency,
		m.CacheLookups,
		m.CacheInvalidation,
		m.OrdersExpired,
	)
	return m
}
