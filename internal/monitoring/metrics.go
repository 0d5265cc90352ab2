package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the resilience core.
type Metrics struct {
	CascadeExecutions  *prometheus.CounterVec
	ProviderAttempts   *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	BreakerTransitions *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	CacheFallbacks     *prometheus.CounterVec
	RecoveryOutcomes   *prometheus.CounterVec
}

// NewMetrics registers the core's collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CascadeExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failover_cascade_executions_total",
			Help: "Cascade executions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failover_provider_attempts_total",
			Help: "Provider attempts by provider id and result.",
		}, []string{"provider", "result"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "failover_provider_latency_seconds",
			Help:    "Observed provider call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failover_breaker_transitions_total",
			Help: "Circuit breaker transitions by provider and target state.",
		}, []string{"provider", "to"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "failover_breaker_state",
			Help: "Current breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"provider"}),
		CacheFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failover_cache_fallbacks_total",
			Help: "Offline/cached fallbacks by kind (hit, estimated, miss).",
		}, []string{"kind"}),
		RecoveryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failover_recovery_outcomes_total",
			Help: "Production recovery outcomes by status.",
		}, []string{"status"}),
	}
}
