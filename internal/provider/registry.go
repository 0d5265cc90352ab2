// Package provider holds the registry of external service providers and
// tracks their live health, reliability, latency, and cost metrics.
package provider

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/resilience"
)

const (
	// reliabilityDecay is subtracted on each recorded failure, floored at 0.
	reliabilityDecay = 0.05
	// reliabilityRecovery is added on each recorded success, capped at 1.
	// Recovery is deliberately slower than decay.
	reliabilityRecovery = 0.01
	// latencySmoothing weights the previous rolling average.
	latencySmoothing = 0.8
	// metricsRetention is the rolling window for health-metric history.
	metricsRetention = 24 * time.Hour
)

// Registry holds all known providers keyed by id, grouped by service type.
// Providers are seeded at construction and never removed; offline providers
// are skipped by availability checks, not deleted.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*model.ServiceProvider
	byService map[model.ServiceType][]string
	history   map[string][]model.HealthMetrics
	limiters  map[string]*rate.Limiter

	breakers *resilience.Breakers
	nowFunc  func() time.Time
}

// NewRegistry creates a registry seeded with the given providers. The
// breaker table participates in availability decisions; providers carrying
// their own failure threshold register it with the table here.
func NewRegistry(seed []model.ServiceProvider, breakers *resilience.Breakers) *Registry {
	r := &Registry{
		providers: make(map[string]*model.ServiceProvider),
		byService: make(map[model.ServiceType][]string),
		history:   make(map[string][]model.HealthMetrics),
		limiters:  make(map[string]*rate.Limiter),
		breakers:  breakers,
		nowFunc:   time.Now,
	}
	for i := range seed {
		r.register(seed[i])
	}
	return r
}

func (r *Registry) register(p model.ServiceProvider) {
	if p.HealthStatus == "" {
		p.HealthStatus = model.HealthHealthy
	}
	cp := p
	r.providers[p.ID] = &cp
	r.byService[p.ServiceType] = append(r.byService[p.ServiceType], p.ID)

	// Keep the per-service list in tier order so the default ordering is
	// meaningful before ranking runs.
	ids := r.byService[p.ServiceType]
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := r.providers[ids[i]], r.providers[ids[j]]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() < b.Tier.Rank()
		}
		return a.ID < b.ID
	})

	if p.Config.RateLimitPerSec > 0 {
		r.limiters[p.ID] = rate.NewLimiter(rate.Limit(p.Config.RateLimitPerSec), int(p.Config.RateLimitPerSec)+1)
	}
	if p.Config.FailureThreshold > 0 && r.breakers != nil {
		r.breakers.SetFailureThreshold(p.ID, p.Config.FailureThreshold)
	}
}

// ProvidersFor returns copies of all providers for a service type, in tier
// order. Callers never receive pointers into the registry.
func (r *Registry) ProvidersFor(st model.ServiceType) []model.ServiceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byService[st]
	out := make([]model.ServiceProvider, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.providers[id])
	}
	return out
}

// Get returns a copy of the provider with the given id.
func (r *Registry) Get(id string) (model.ServiceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return model.ServiceProvider{}, false
	}
	return *p, true
}

// IsAvailable reports whether the provider may receive traffic: its circuit
// breaker is not open and its health status is healthy or degraded.
func (r *Registry) IsAvailable(id string) bool {
	r.mu.RLock()
	p, ok := r.providers[id]
	if !ok {
		r.mu.RUnlock()
		return false
	}
	status := p.HealthStatus
	r.mu.RUnlock()

	if status != model.HealthHealthy && status != model.HealthDegraded {
		return false
	}
	if r.breakers != nil && r.breakers.State(id) == resilience.CircuitOpen {
		return false
	}
	return true
}

// AllowRequest enforces the provider's rate limit and daily quota. Returns
// false when the request should be skipped without counting as a failure.
func (r *Registry) AllowRequest(id string) bool {
	r.mu.Lock()
	p, ok := r.providers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if p.Config.DailyQuota > 0 && p.QuotaUsedToday >= p.Config.DailyQuota {
		r.mu.Unlock()
		return false
	}
	lim := r.limiters[id]
	r.mu.Unlock()

	if lim != nil && !lim.Allow() {
		return false
	}
	return true
}

// RecordOutcome updates live metrics after a provider call completes.
// Success recovers reliability slowly; failure decays it faster. The rolling
// latency average is updated on success only, since failures often time out
// at the configured ceiling.
func (r *Registry) RecordOutcome(id string, ok bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.providers[id]
	if !found {
		return
	}

	p.QuotaUsedToday++
	if ok {
		p.Reliability = clamp01(p.Reliability + reliabilityRecovery)
		latMs := float64(latency.Milliseconds())
		if p.LatencyMs == 0 {
			p.LatencyMs = latMs
		} else {
			p.LatencyMs = latencySmoothing*p.LatencyMs + (1-latencySmoothing)*latMs
		}
	} else {
		p.Reliability = clamp01(p.Reliability - reliabilityDecay)
	}

	r.appendMetricsLocked(id, model.HealthMetrics{
		Timestamp:      r.nowFunc(),
		ResponseTimeMs: float64(latency.Milliseconds()),
		SuccessRate:    boolRate(ok),
		ErrorRate:      boolRate(!ok),
		Availability:   p.Reliability,
		CostEfficiency: costEfficiency(p.CostPerRequest),
		QualityScore:   p.Reliability,
		BusinessImpact: model.ImpactMinimal,
	})
}

// RecordHealthCheck applies a probe result: response-time thresholds drive
// the coarse health status (<500ms healthy, <1000ms degraded, else
// unhealthy); a probe failure marks the provider unhealthy or offline.
func (r *Registry) RecordHealthCheck(id string, ok bool, rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.providers[id]
	if !found {
		return
	}

	p.LastHealthCheck = r.nowFunc()

	switch {
	case !ok && p.HealthStatus == model.HealthUnhealthy:
		// Two failed probes in a row: consider the provider offline.
		p.HealthStatus = model.HealthOffline
	case !ok:
		p.HealthStatus = model.HealthUnhealthy
	case rtt < 500*time.Millisecond:
		p.HealthStatus = model.HealthHealthy
	case rtt < time.Second:
		p.HealthStatus = model.HealthDegraded
	default:
		p.HealthStatus = model.HealthUnhealthy
	}

	r.appendMetricsLocked(id, model.HealthMetrics{
		Timestamp:      r.nowFunc(),
		ResponseTimeMs: float64(rtt.Milliseconds()),
		SuccessRate:    boolRate(ok),
		ErrorRate:      boolRate(!ok),
		Availability:   p.Reliability,
		CostEfficiency: costEfficiency(p.CostPerRequest),
		QualityScore:   p.Reliability,
		BusinessImpact: model.ImpactMinimal,
	})
}

// RecentMetrics returns history samples for the provider within the window,
// oldest first.
func (r *Registry) RecentMetrics(id string, window time.Duration) []model.HealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.nowFunc().Add(-window)
	var out []model.HealthMetrics
	for _, m := range r.history[id] {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// ResetQuotas zeroes the daily quota counters. Called once per day by the
// background scheduler.
func (r *Registry) ResetQuotas() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		p.QuotaUsedToday = 0
	}
}

// Snapshot returns copies of every registered provider, for observability.
func (r *Registry) Snapshot() []model.ServiceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ServiceProvider, 0, len(r.providers))
	for _, ids := range r.byService {
		for _, id := range ids {
			out = append(out, *r.providers[id])
		}
	}
	return out
}

// appendMetricsLocked appends a sample and prunes entries older than the
// retention window. Caller holds r.mu.
func (r *Registry) appendMetricsLocked(id string, m model.HealthMetrics) {
	hist := append(r.history[id], m)
	cutoff := r.nowFunc().Add(-metricsRetention)
	start := 0
	for start < len(hist) && !hist[start].Timestamp.After(cutoff) {
		start++
	}
	r.history[id] = hist[start:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolRate(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// costEfficiency maps cost-per-request to a [0,1] score where cheaper is
// better. Tunable constant, not a behavioral contract.
func costEfficiency(costPerRequest float64) float64 {
	if costPerRequest <= 0 {
		return 1
	}
	eff := 1 - costPerRequest*100
	return clamp01(eff)
}
