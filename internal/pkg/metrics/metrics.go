package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_ledger_mutations_total",
		Help: "Ledger mutations by operation and outcome",
	}, []string{"op", "outcome"})

	RegistryOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_registry_ops_total",
		Help: "Asset registry writes by operation and outcome",
	}, []string{"op", "outcome"})

	HealthRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_health_rejects_total",
		Help: "Mutations rejected because the resulting obligation was unhealthy",
	}, []string{"op"})

	OracleFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_oracle_fallbacks_total",
		Help: "Health-check price reads that fell back to the registry price",
	}, []string{"reason"})

	HealthScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polylend_health_score_x1000",
		Help:    "Finite health scores (x1000) computed by the risk engine",
		Buckets: []float64{250, 500, 750, 900, 1000, 1100, 1250, 1500, 2000, 5000, 10000},
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polylend_http_request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polylend_idempotent_replays_total",
		Help: "Mutations answered from the idempotency store instead of re-applied",
	})
)
