// Package cascade executes ranked provider lists sequentially with
// per-provider timeouts, circuit-breaker skips, and offline/cached
// degraded-service fallback when every live provider fails.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/cache"
	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/monitoring"
	"github.com/dispatchlab/failover/internal/provider"
	"github.com/dispatchlab/failover/internal/ranking"
	"github.com/dispatchlab/failover/internal/resilience"
)

// fallbackTimeoutScale stretches the configured timeout for non-primary
// tiers: fallback providers get a little more room before the cascade moves
// on.
const fallbackTimeoutScale = 1.5

// CallFunc invokes the keyed provider with the cascade's request. The core
// treats it as an opaque operation; concrete API clients live outside.
type CallFunc func(ctx context.Context, providerID string) (any, error)

// EstimateFunc synthesizes a lower-confidence response from historical
// patterns when neither a live provider nor a cache entry is available.
// Returns false when no estimate can be produced.
type EstimateFunc func(operation string, request any) (any, bool)

// Config tunes the cascade executor.
type Config struct {
	// SuccessTTL is the cache lifetime for live successful responses.
	SuccessTTL time.Duration
	// EstimateTTL is the short cache lifetime for synthesized estimates.
	EstimateTTL time.Duration
	// Estimate is optional; nil disables estimated responses.
	Estimate EstimateFunc
}

// Executor runs fallback cascades. Providers are always attempted strictly
// sequentially, never in parallel, which bounds duplicate cost exposure.
type Executor struct {
	registry *provider.Registry
	breakers *resilience.Breakers
	store    cache.Store
	bus      *monitoring.Bus
	metrics  *monitoring.Metrics
	cfg      Config

	nowFunc func() time.Time
}

// NewExecutor wires a cascade executor. The metrics handle may be nil in
// tests.
func NewExecutor(registry *provider.Registry, breakers *resilience.Breakers, store cache.Store, bus *monitoring.Bus, metrics *monitoring.Metrics, cfg Config) *Executor {
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = 24 * time.Hour
	}
	if cfg.EstimateTTL <= 0 {
		cfg.EstimateTTL = time.Hour
	}
	return &Executor{
		registry: registry,
		breakers: breakers,
		store:    store,
		bus:      bus,
		metrics:  metrics,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Execute attempts the ranked providers in order and falls through to
// cached/estimated data. It always returns a well-formed FallbackResult;
// provider errors never escape.
func (e *Executor) Execute(ctx context.Context, ranked []ranking.Scored, call CallFunc, fctx *FallbackContext) FallbackResult {
	started := e.nowFunc()
	log := zap.L().With(
		zap.String("component", "cascade"),
		zap.String("operation", fctx.Operation),
	)

	var baseline float64
	if len(ranked) > 0 {
		baseline = ranked[0].Provider.CostPerRequest
	}

	for i, s := range ranked {
		p := s.Provider

		if err := ctx.Err(); err != nil {
			log.Warn("cascade cancelled", zap.Error(err))
			return e.exhausted(ctx, fctx, started, "caller cancelled")
		}

		// Circuit-open and unavailability are skips, not attempts: they
		// must not further penalize an already-suspected provider.
		// Availability and rate/quota run before the breaker check: Allow
		// hands out the single half-open probe slot, and only an attempt
		// that actually runs can resolve it.
		if !e.registry.IsAvailable(p.ID) || !e.registry.AllowRequest(p.ID) {
			log.Debug("skipping provider, unavailable", zap.String("provider", p.ID))
			continue
		}
		if !e.breakers.Allow(p.ID) {
			log.Debug("skipping provider, circuit open", zap.String("provider", p.ID))
			continue
		}

		data, elapsed, err := e.attempt(ctx, p, call)
		for retry := 0; err != nil && retry < p.Config.MaxRetries; retry++ {
			if ctx.Err() != nil || !resilience.IsTransient(err) {
				break
			}
			log.Debug("retrying provider after transient error",
				zap.String("provider", p.ID),
				zap.Int("retry", retry+1),
				zap.Error(err),
			)
			data, elapsed, err = e.attempt(ctx, p, call)
		}
		if err == nil {
			e.breakers.RecordSuccess(p.ID)
			e.registry.RecordOutcome(p.ID, true, elapsed)
			e.observeAttempt(p.ID, "success", elapsed)

			result := FallbackResult{
				Success:          true,
				Data:             data,
				Provider:         p.ID,
				DegradationLevel: model.DegradationForTier(p.Tier),
				CostImpactPct:    ranking.CostIncreasePct(p.CostPerRequest, baseline),
				Latency:          e.nowFunc().Sub(started),
				Metadata: ResultMetadata{
					ProvidersTried: append(append([]string{}, fctx.AttemptedProviders...), p.ID),
					Strategy:       StrategyLive,
				},
			}

			e.cacheSuccess(ctx, fctx, data)

			if i > 0 {
				e.emit(monitoring.Event{
					Type:     monitoring.EventFallbackExecuted,
					Severity: "warn",
					Message:  fmt.Sprintf("operation %s served by fallback provider %s", fctx.Operation, p.ID),
					Details: map[string]any{
						"operation":       fctx.Operation,
						"provider":        p.ID,
						"tier":            string(p.Tier),
						"cost_impact_pct": result.CostImpactPct,
						"providers_tried": result.Metadata.ProvidersTried,
					},
				})
			}
			e.countCascade(fctx, "success")
			return result
		}

		// Attempt failed or timed out.
		fctx.AttemptedProviders = append(fctx.AttemptedProviders, p.ID)
		fctx.Errors = append(fctx.Errors, AttemptError{
			Provider:  p.ID,
			Error:     err.Error(),
			Timestamp: e.nowFunc(),
		})
		e.breakers.RecordFailure(p.ID, fctx.Business.Urgency)
		e.registry.RecordOutcome(p.ID, false, elapsed)
		e.observeAttempt(p.ID, "failure", elapsed)

		log.Warn("provider attempt failed",
			zap.String("provider", p.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}

	// All live providers exhausted or skipped.
	if fctx.Requirements.AllowCachedData && e.store != nil {
		if result, ok := e.tryOffline(ctx, fctx, started); ok {
			e.countCascade(fctx, "degraded")
			return result
		}
	}

	e.countCascade(fctx, "failure")
	return e.exhausted(ctx, fctx, started, "all providers exhausted")
}

// attempt invokes the provider racing its configured timeout. A hung call
// never blocks the cascade beyond the deadline; its goroutine is abandoned
// with a cancelled context.
func (e *Executor) attempt(ctx context.Context, p model.ServiceProvider, call CallFunc) (any, time.Duration, error) {
	timeout := p.Config.Timeout
	if p.Tier != model.TierPrimary {
		timeout = time.Duration(float64(timeout) * fallbackTimeoutScale)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	ch := make(chan outcome, 1)
	started := e.nowFunc()
	go func() {
		data, err := call(attemptCtx, p.ID)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case o := <-ch:
		return o.data, e.nowFunc().Sub(started), o.err
	case <-attemptCtx.Done():
		return nil, e.nowFunc().Sub(started), eris.Wrapf(attemptCtx.Err(), "provider %s timed out after %s", p.ID, timeout)
	}
}

// tryOffline serves a cache hit or a synthesized estimate.
func (e *Executor) tryOffline(ctx context.Context, fctx *FallbackContext, started time.Time) (FallbackResult, bool) {
	log := zap.L().With(zap.String("component", "cascade"))

	key, err := cache.RequestKey(fctx.Operation, fctx.Request)
	if err != nil {
		log.Error("failed to derive cache key", zap.Error(err))
		return FallbackResult{}, false
	}

	if raw, found, err := e.store.Get(ctx, key); err != nil {
		log.Error("offline cache lookup failed", zap.Error(err))
	} else if found {
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			log.Error("corrupt offline cache entry", zap.String("key", key), zap.Error(err))
		} else {
			e.countCache("hit")
			e.emitOffline(fctx, StrategyCached)
			return FallbackResult{
				Success:          true,
				Data:             data,
				DegradationLevel: model.DegradationModerate,
				CacheUsed:        true,
				OfflineMode:      true,
				Latency:          e.nowFunc().Sub(started),
				Metadata: ResultMetadata{
					ProvidersTried: fctx.AttemptedProviders,
					Strategy:       StrategyCached,
				},
			}, true
		}
	}

	if e.cfg.Estimate != nil && fctx.Requirements.AllowDegradedService {
		if data, ok := e.cfg.Estimate(fctx.Operation, fctx.Request); ok {
			if raw, err := json.Marshal(data); err == nil {
				if err := e.store.Set(ctx, key, raw, e.cfg.EstimateTTL); err != nil {
					log.Warn("failed to cache estimate", zap.Error(err))
				}
			}
			e.countCache("estimated")
			e.emitOffline(fctx, StrategyEstimated)
			return FallbackResult{
				Success:          true,
				Data:             data,
				DegradationLevel: model.DegradationModerate,
				OfflineMode:      true,
				Latency:          e.nowFunc().Sub(started),
				Metadata: ResultMetadata{
					ProvidersTried: fctx.AttemptedProviders,
					Strategy:       StrategyEstimated,
				},
			}, true
		}
	}

	e.countCache("miss")
	return FallbackResult{}, false
}

// exhausted builds the structured failure result.
func (e *Executor) exhausted(ctx context.Context, fctx *FallbackContext, started time.Time, reason string) FallbackResult {
	impact := model.AssessImpact(fctx.Business)

	e.emit(monitoring.Event{
		Type:     monitoring.EventFallbackExecuted,
		Severity: "critical",
		Message:  fmt.Sprintf("operation %s failed: %s", fctx.Operation, reason),
		Details: map[string]any{
			"operation":       fctx.Operation,
			"providers_tried": fctx.AttemptedProviders,
			"errors":          len(fctx.Errors),
			"business_impact": string(impact),
		},
	})

	return FallbackResult{
		Success:          false,
		DegradationLevel: model.DegradationSevere,
		Latency:          e.nowFunc().Sub(started),
		Metadata: ResultMetadata{
			ProvidersTried:  fctx.AttemptedProviders,
			Strategy:        StrategyExhausted,
			BusinessImpact:  impact,
			Recommendations: recommendations(impact, fctx),
		},
	}
}

// cacheSuccess stores a live success for later offline fallback. Best
// effort; failures only log.
func (e *Executor) cacheSuccess(ctx context.Context, fctx *FallbackContext, data any) {
	if e.store == nil {
		return
	}
	key, err := cache.RequestKey(fctx.Operation, fctx.Request)
	if err != nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, raw, e.cfg.SuccessTTL); err != nil {
		zap.L().Warn("failed to cache successful response", zap.Error(err))
	}
}

func recommendations(impact model.BusinessImpact, fctx *FallbackContext) []string {
	recs := []string{"review provider health history for the attempted providers"}
	if impact.Severity() >= model.ImpactCritical.Severity() {
		recs = append(recs, "escalate to on-call, customer-impacting failure")
	}
	if !fctx.Requirements.AllowCachedData {
		recs = append(recs, "enable cached data to permit degraded service")
	}
	if !fctx.Requirements.AllowDegradedService {
		recs = append(recs, "allow degraded service to permit estimated responses")
	}
	return recs
}

func (e *Executor) emit(ev monitoring.Event) {
	if e.bus != nil {
		e.bus.Emit(ev)
	}
}

func (e *Executor) emitOffline(fctx *FallbackContext, strategy string) {
	e.emit(monitoring.Event{
		Type:     monitoring.EventFallbackExecuted,
		Severity: "warn",
		Message:  fmt.Sprintf("operation %s served from %s", fctx.Operation, strategy),
		Details: map[string]any{
			"operation":       fctx.Operation,
			"strategy":        strategy,
			"providers_tried": fctx.AttemptedProviders,
		},
	})
}

func (e *Executor) observeAttempt(providerID, result string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ProviderAttempts.WithLabelValues(providerID, result).Inc()
	e.metrics.ProviderLatency.WithLabelValues(providerID).Observe(elapsed.Seconds())
}

func (e *Executor) countCascade(fctx *FallbackContext, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.CascadeExecutions.WithLabelValues(fctx.Operation, outcome).Inc()
}

func (e *Executor) countCache(kind string) {
	if e.metrics == nil {
		return
	}
	e.metrics.CacheFallbacks.WithLabelValues(kind).Inc()
}
