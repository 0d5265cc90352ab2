package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
)

// Prober performs a lightweight liveness check against a provider,
// independent of business traffic. Implementations live outside the core.
type Prober interface {
	Probe(ctx context.Context, providerID string) (rtt time.Duration, err error)
}

// DegradeFunc is notified when a health check degrades a provider.
type DegradeFunc func(p model.ServiceProvider)

// HealthChecker probes every registered provider on a fixed interval.
type HealthChecker struct {
	registry  *Registry
	prober    Prober
	interval  time.Duration
	onDegrade DegradeFunc
}

// NewHealthChecker creates a checker over the registry. A zero interval
// defaults to 30s.
func NewHealthChecker(registry *Registry, prober Prober, interval time.Duration, onDegrade DegradeFunc) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthChecker{
		registry:  registry,
		prober:    prober,
		interval:  interval,
		onDegrade: onDegrade,
	}
}

// Run starts the periodic probe loop. It blocks until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "provider.health"))
	log.Info("starting health checker", zap.Duration("interval", h.interval))

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll probes every provider once and records the results.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	log := zap.L().With(zap.String("component", "provider.health"))

	for _, p := range h.registry.Snapshot() {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		rtt, err := h.prober.Probe(probeCtx, p.ID)
		cancel()

		wasServing := p.HealthStatus == model.HealthHealthy || p.HealthStatus == model.HealthDegraded
		h.registry.RecordHealthCheck(p.ID, err == nil, rtt)

		if err != nil {
			log.Warn("provider health check failed",
				zap.String("provider", p.ID),
				zap.Error(err),
			)
			if wasServing && h.onDegrade != nil {
				if cur, ok := h.registry.Get(p.ID); ok {
					h.onDegrade(cur)
				}
			}
			continue
		}

		log.Debug("provider health check ok",
			zap.String("provider", p.ID),
			zap.Duration("rtt", rtt),
		)
	}
}
