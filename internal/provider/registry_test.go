package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/resilience"
)

func seedProviders() []model.ServiceProvider {
	return []model.ServiceProvider{
		{
			ID: "graphhopper", Name: "GraphHopper", ServiceType: model.ServiceRouting,
			Tier: model.TierSecondary, Reliability: 0.99, LatencyMs: 1200, CostPerRequest: 0.005,
			Config: model.ProviderConfig{Timeout: 3 * time.Second},
		},
		{
			ID: "osrm", Name: "OSRM", ServiceType: model.ServiceRouting,
			Tier: model.TierPrimary, Reliability: 0.98, LatencyMs: 800, CostPerRequest: 0.001,
			Config: model.ProviderConfig{Timeout: 2 * time.Second},
		},
		{
			ID: "openweather", Name: "OpenWeather", ServiceType: model.ServiceWeather,
			Tier: model.TierPrimary, Reliability: 0.97, LatencyMs: 400, CostPerRequest: 0.0004,
			Config: model.ProviderConfig{Timeout: 2 * time.Second},
		},
	}
}

func TestRegistry_ProvidersForTierOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	routing := r.ProvidersFor(model.ServiceRouting)

	require.Len(t, routing, 2)
	assert.Equal(t, "osrm", routing[0].ID, "primary tier sorts first")
	assert.Equal(t, "graphhopper", routing[1].ID)

	weather := r.ProvidersFor(model.ServiceWeather)
	require.Len(t, weather, 1)
	assert.Equal(t, "openweather", weather[0].ID)
}

func TestRegistry_RecordOutcomeReliabilityBounds(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)

	// Repeated failures never push reliability below 0.
	for i := 0; i < 50; i++ {
		r.RecordOutcome("osrm", false, 2*time.Second)
	}
	p, ok := r.Get("osrm")
	require.True(t, ok)
	assert.GreaterOrEqual(t, p.Reliability, 0.0)
	assert.Equal(t, 0.0, p.Reliability)

	// Repeated successes never push reliability above 1.
	for i := 0; i < 200; i++ {
		r.RecordOutcome("osrm", true, 500*time.Millisecond)
	}
	p, _ = r.Get("osrm")
	assert.LessOrEqual(t, p.Reliability, 1.0)
	assert.Equal(t, 1.0, p.Reliability)
}

func TestRegistry_RecoverySlowerThanDecay(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	before, _ := r.Get("osrm")

	r.RecordOutcome("osrm", false, time.Second)
	afterFail, _ := r.Get("osrm")
	drop := before.Reliability - afterFail.Reliability

	r.RecordOutcome("osrm", true, time.Second)
	afterSuccess, _ := r.Get("osrm")
	gain := afterSuccess.Reliability - afterFail.Reliability

	assert.Greater(t, drop, gain, "decay should outpace recovery")
}

func TestRegistry_LatencyRollingAverage(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	r.RecordOutcome("osrm", true, 1600*time.Millisecond)

	p, _ := r.Get("osrm")
	// 0.8*800 + 0.2*1600 = 960
	assert.InDelta(t, 960, p.LatencyMs, 0.1)
}

func TestRegistry_HealthCheckThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ok   bool
		rtt  time.Duration
		want model.HealthStatus
	}{
		{"fast is healthy", true, 200 * time.Millisecond, model.HealthHealthy},
		{"slow is degraded", true, 700 * time.Millisecond, model.HealthDegraded},
		{"very slow is unhealthy", true, 1500 * time.Millisecond, model.HealthUnhealthy},
		{"probe failure is unhealthy", false, 0, model.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(seedProviders(), nil)
			r.RecordHealthCheck("osrm", tt.ok, tt.rtt)
			p, _ := r.Get("osrm")
			assert.Equal(t, tt.want, p.HealthStatus)
			assert.False(t, p.LastHealthCheck.IsZero())
		})
	}
}

func TestRegistry_SecondProbeFailureGoesOffline(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	r.RecordHealthCheck("osrm", false, 0)
	r.RecordHealthCheck("osrm", false, 0)

	p, _ := r.Get("osrm")
	assert.Equal(t, model.HealthOffline, p.HealthStatus)
}

func TestRegistry_IsAvailable(t *testing.T) {
	t.Parallel()

	breakers := resilience.NewBreakers(resilience.CircuitConfig{FailureThreshold: 1, Cooldown: time.Minute})
	r := NewRegistry(seedProviders(), breakers)

	assert.True(t, r.IsAvailable("osrm"))

	// Degraded still serves traffic.
	r.RecordHealthCheck("osrm", true, 700*time.Millisecond)
	assert.True(t, r.IsAvailable("osrm"))

	// Unhealthy does not.
	r.RecordHealthCheck("osrm", true, 2*time.Second)
	assert.False(t, r.IsAvailable("osrm"))

	// Open breaker blocks an otherwise healthy provider.
	r.RecordHealthCheck("graphhopper", true, 100*time.Millisecond)
	breakers.RecordFailure("graphhopper", model.UrgencyMedium)
	assert.False(t, r.IsAvailable("graphhopper"))

	assert.False(t, r.IsAvailable("unknown"))
}

func TestRegistry_MetricsWindowAndPruning(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	base := time.Now()

	// A sample from 25h ago is pruned once a fresh sample arrives.
	r.nowFunc = func() time.Time { return base.Add(-25 * time.Hour) }
	r.RecordOutcome("osrm", true, time.Second)
	r.nowFunc = func() time.Time { return base }
	r.RecordOutcome("osrm", true, time.Second)

	all := r.RecentMetrics("osrm", metricsRetention)
	require.Len(t, all, 1)

	// Window filter returns only recent samples.
	r.nowFunc = func() time.Time { return base.Add(-10 * time.Minute) }
	r.RecordOutcome("osrm", false, time.Second)
	r.nowFunc = func() time.Time { return base }

	recent := r.RecentMetrics("osrm", 15*time.Minute)
	assert.Len(t, recent, 2)
	recent5 := r.RecentMetrics("osrm", 5*time.Minute)
	assert.Len(t, recent5, 1)
}

func TestRegistry_QuotaExhaustionBlocksRequests(t *testing.T) {
	t.Parallel()

	seed := seedProviders()
	seed[1].Config.DailyQuota = 2
	r := NewRegistry(seed, nil)

	assert.True(t, r.AllowRequest("osrm"))
	r.RecordOutcome("osrm", true, time.Second)
	r.RecordOutcome("osrm", true, time.Second)
	assert.False(t, r.AllowRequest("osrm"))

	r.ResetQuotas()
	assert.True(t, r.AllowRequest("osrm"))
}

type stubProber struct {
	rtt time.Duration
	err error
}

func (s *stubProber) Probe(context.Context, string) (time.Duration, error) {
	return s.rtt, s.err
}

func TestHealthChecker_CheckAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	hc := NewHealthChecker(r, &stubProber{rtt: 100 * time.Millisecond}, 0, nil)
	hc.CheckAll(context.Background())

	for _, p := range r.Snapshot() {
		assert.Equal(t, model.HealthHealthy, p.HealthStatus, p.ID)
		assert.False(t, p.LastHealthCheck.IsZero(), p.ID)
	}
}

func TestHealthChecker_DegradeCallback(t *testing.T) {
	t.Parallel()

	r := NewRegistry(seedProviders(), nil)
	var degraded []string
	hc := NewHealthChecker(r, &stubProber{err: errors.New("connection refused")}, 0,
		func(p model.ServiceProvider) { degraded = append(degraded, p.ID) })

	hc.CheckAll(context.Background())
	assert.Len(t, degraded, 3, "every previously serving provider degrades")

	// Second sweep: providers already unhealthy, no further notifications.
	degraded = nil
	hc.CheckAll(context.Background())
	assert.Empty(t, degraded)
}

func TestRegistry_SeedsPerProviderFailureThreshold(t *testing.T) {
	t.Parallel()

	breakers := resilience.NewBreakers(resilience.CircuitConfig{FailureThreshold: 5, Cooldown: time.Minute})
	seed := seedProviders()
	seed[1].Config.FailureThreshold = 2 // osrm trips faster than the fleet default
	r := NewRegistry(seed, breakers)

	breakers.RecordFailure("osrm", model.UrgencyMedium)
	breakers.RecordFailure("osrm", model.UrgencyMedium)
	assert.Equal(t, resilience.CircuitOpen, breakers.State("osrm"))
	assert.False(t, r.IsAvailable("osrm"))

	// graphhopper carries no override and keeps the shared threshold.
	breakers.RecordFailure("graphhopper", model.UrgencyMedium)
	breakers.RecordFailure("graphhopper", model.UrgencyMedium)
	assert.Equal(t, resilience.CircuitClosed, breakers.State("graphhopper"))
}
