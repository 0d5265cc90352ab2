package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
)

// FleetSource supplies provider snapshots for threshold evaluation.
type FleetSource interface {
	Snapshot() []model.ServiceProvider
}

// CheckerConfig controls the periodic fleet check.
type CheckerConfig struct {
	Interval time.Duration
	// UnhealthyRatioThreshold triggers an alert when the fraction of
	// unhealthy/offline providers exceeds it. Default: 0.5.
	UnhealthyRatioThreshold float64
	// MinReliability triggers a per-provider alert when live reliability
	// falls below it. Default: 0.5.
	MinReliability float64
}

// Checker periodically evaluates the provider fleet and emits alerts when
// thresholds are breached.
type Checker struct {
	src FleetSource
	bus *Bus
	cfg CheckerConfig
}

// NewChecker creates a background fleet checker.
func NewChecker(src FleetSource, bus *Bus, cfg CheckerConfig) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.UnhealthyRatioThreshold <= 0 {
		cfg.UnhealthyRatioThreshold = 0.5
	}
	if cfg.MinReliability <= 0 {
		cfg.MinReliability = 0.5
	}
	return &Checker{src: src, bus: bus, cfg: cfg}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting fleet checker", zap.Duration("interval", c.cfg.Interval))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("fleet checker stopped")
			return
		case <-ticker.C:
			n := len(c.Evaluate())
			if n > 0 {
				log.Info("fleet check complete", zap.Int("alerts", n))
			}
		}
	}
}

// Evaluate runs one check pass and returns the emitted events.
func (c *Checker) Evaluate() []Event {
	fleet := c.src.Snapshot()
	if len(fleet) == 0 {
		return nil
	}

	var events []Event
	unhealthy := 0
	for _, p := range fleet {
		if p.HealthStatus == model.HealthUnhealthy || p.HealthStatus == model.HealthOffline {
			unhealthy++
		}
		if p.Reliability < c.cfg.MinReliability {
			events = append(events, Event{
				Type:     EventProviderDegraded,
				Severity: "high",
				Message: fmt.Sprintf("provider %s reliability %.2f below threshold %.2f",
					p.ID, p.Reliability, c.cfg.MinReliability),
				Details: map[string]any{
					"provider":    p.ID,
					"reliability": p.Reliability,
					"status":      string(p.HealthStatus),
				},
			})
		}
	}

	ratio := float64(unhealthy) / float64(len(fleet))
	if ratio > c.cfg.UnhealthyRatioThreshold {
		events = append(events, Event{
			Type:     EventProviderDegraded,
			Severity: "critical",
			Message: fmt.Sprintf("%d of %d providers unhealthy (%.0f%%)",
				unhealthy, len(fleet), ratio*100),
			Details: map[string]any{
				"unhealthy": unhealthy,
				"total":     len(fleet),
			},
		})
	}

	for _, e := range events {
		c.bus.Emit(e)
	}
	return events
}
