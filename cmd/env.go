package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/cache"
	"github.com/dispatchlab/failover/internal/cascade"
	"github.com/dispatchlab/failover/internal/cost"
	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/monitoring"
	"github.com/dispatchlab/failover/internal/plan"
	"github.com/dispatchlab/failover/internal/predict"
	"github.com/dispatchlab/failover/internal/provider"
	"github.com/dispatchlab/failover/internal/recovery"
	"github.com/dispatchlab/failover/internal/resilience"
)

// coreEnv holds the wired resilience core shared by all commands.
type coreEnv struct {
	Store    cache.Store
	Registry *provider.Registry
	Breakers *resilience.Breakers
	Bus      *monitoring.Bus
	Metrics  *monitoring.Metrics
	PromReg  *prometheus.Registry
	Alerter  *monitoring.Alerter
	Fleet    *monitoring.Checker
	Health   *provider.HealthChecker
	Predict  *predict.Monitor
	Cascade  *cascade.Executor
	Plans    *plan.Generator
	Recovery *recovery.Orchestrator
	Costs    *cost.Calculator
}

// Close releases resources held by the core environment.
func (e *coreEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initCore builds the full dependency graph: breaker table, provider
// registry, offline store, monitoring, cascade, plans, predictive monitor,
// and recovery orchestrator. Callers should defer env.Close().
func initCore(ctx context.Context, mode string) (*coreEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	if err := configureRecoveryDeadlines(); err != nil {
		return nil, err
	}

	bus := monitoring.NewBus()
	promReg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(promReg)

	breakers := resilience.NewBreakers(resilience.CircuitConfig{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		CriticalThreshold: cfg.Breaker.CriticalThreshold,
		Cooldown:          cfg.Breaker.Cooldown(),
		OnStateChange: func(key string, from, to resilience.CircuitState) {
			metrics.BreakerTransitions.WithLabelValues(key, to.String()).Inc()
			metrics.BreakerState.WithLabelValues(key).Set(float64(to))

			evType := monitoring.EventCircuitClosed
			severity := "info"
			if to == resilience.CircuitOpen {
				evType = monitoring.EventCircuitOpened
				severity = "high"
			}
			bus.Emit(monitoring.Event{
				Type:     evType,
				Severity: severity,
				Message:  "circuit breaker for " + key + " moved to " + to.String(),
				Details: map[string]any{
					"provider": key,
					"from":     from.String(),
					"to":       to.String(),
				},
			})
		},
	})

	seed, err := provider.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		zap.L().Warn("provider catalog not loaded, using built-in seed",
			zap.String("path", cfg.Catalog.Path),
			zap.Error(err),
		)
		seed = provider.DefaultCatalog()
	}
	reg := provider.NewRegistry(seed, breakers)
	zap.L().Info("provider registry seeded", zap.Int("providers", len(seed)))

	store, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	alerter := monitoring.NewAlerter(cfg.Alerts.WebhookURL)
	bus.Subscribe(alerter)

	fleet := monitoring.NewChecker(reg, bus, monitoring.CheckerConfig{
		Interval:                cfg.Health.FleetCheckInterval(),
		UnhealthyRatioThreshold: cfg.Health.UnhealthyRatio,
		MinReliability:          cfg.Health.MinReliability,
	})

	health := provider.NewHealthChecker(reg, newHTTPProber(seed), cfg.Health.ProbeInterval(),
		func(p model.ServiceProvider) {
			bus.Emit(monitoring.Event{
				Type:     monitoring.EventProviderDegraded,
				Severity: "warn",
				Message:  "provider " + p.ID + " failed its health probe",
				Details: map[string]any{
					"provider": p.ID,
					"status":   string(p.HealthStatus),
				},
			})
		})

	mon := predict.NewMonitor(reg, breakers, bus, predict.Config{
		Interval:            cfg.Predict.Interval(),
		Window:              cfg.Predict.Window(),
		MinSamples:          cfg.Predict.MinSamples,
		DropThreshold:       cfg.Predict.DropThreshold,
		ForceOpenConfidence: cfg.Predict.ForceOpenConfidence,
	})

	exec := cascade.NewExecutor(reg, breakers, store, bus, metrics, cascade.Config{
		SuccessTTL:  cfg.Cache.SuccessTTL(),
		EstimateTTL: cfg.Cache.EstimateTTL(),
	})

	return &coreEnv{
		Store:    store,
		Registry: reg,
		Breakers: breakers,
		Bus:      bus,
		Metrics:  metrics,
		PromReg:  promReg,
		Alerter:  alerter,
		Fleet:    fleet,
		Health:   health,
		Predict:  mon,
		Cascade:  exec,
		Plans:    plan.NewGenerator(reg, cfg.Plans.MaxRetained),
		Recovery: recovery.NewOrchestrator(reg, breakers, bus),
		Costs:    cost.NewCalculator(cfg.Pricing),
	}, nil
}

// initStore opens the offline-cache backend selected by config.
func initStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return cache.NewSQLite(cfg.Store.Path)
	case "postgres":
		return cache.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "memory":
		return cache.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// configureRecoveryDeadlines applies the configured deadline table.
func configureRecoveryDeadlines() error {
	if len(cfg.Recovery.DeadlineMins) == 0 {
		return nil
	}
	table := make(map[model.BusinessImpact]time.Duration, len(cfg.Recovery.DeadlineMins))
	for impact, mins := range cfg.Recovery.DeadlineMins {
		table[model.BusinessImpact(impact)] = time.Duration(mins) * time.Minute
	}
	return recovery.ConfigureDeadlines(table)
}

// httpProber probes providers over their configured health URLs. Providers
// without a URL are treated as alive; real probes live with the provider
// integrations, not the core.
type httpProber struct {
	urls   map[string]string
	client *http.Client
	retry  resilience.RetryConfig
}

func newHTTPProber(seed []model.ServiceProvider) *httpProber {
	urls := make(map[string]string, len(seed))
	for _, p := range seed {
		if p.Config.HealthURL != "" {
			urls[p.ID] = p.Config.HealthURL
		}
	}
	return &httpProber{
		urls:   urls,
		client: &http.Client{Timeout: 2 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 200 * time.Millisecond,
		},
	}
}

// Probe implements provider.Prober. One transient blip does not mark a
// provider down; the probe retries before reporting failure.
func (hp *httpProber) Probe(ctx context.Context, providerID string) (time.Duration, error) {
	url, ok := hp.urls[providerID]
	if !ok {
		return 0, nil
	}

	return resilience.RetryVal(ctx, hp.retry, "health_probe", func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, eris.Wrapf(err, "probe %s", providerID)
		}
		resp, err := hp.client.Do(req)
		if err != nil {
			return time.Since(start), resilience.NewTransientError(eris.Wrapf(err, "probe %s", providerID), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := eris.Errorf("probe %s returned %d", providerID, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return time.Since(start), resilience.NewTransientError(err, resp.StatusCode)
			}
			return time.Since(start), err
		}
		return time.Since(start), nil
	})
}
