// Package predict watches per-provider health-metric history for
// deteriorating trends and proactively opens circuit breakers before hard
// failures occur. This is the core's only pre-emptive control action; a
// wrong prediction costs one cooldown window, not a permanent ban.
package predict

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/monitoring"
	"github.com/dispatchlab/failover/internal/provider"
	"github.com/dispatchlab/failover/internal/resilience"
)

// Severity tiers a deteriorating trend by the magnitude of the drop.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Trend is the analysis outcome for one provider.
type Trend struct {
	ProviderID    string   `json:"provider_id"`
	Deteriorating bool     `json:"deteriorating"`
	Drop          float64  `json:"drop"`
	Confidence    float64  `json:"confidence"`
	Severity      Severity `json:"severity,omitempty"`
}

// Config tunes the monitor.
type Config struct {
	// Interval between analysis passes. Default: 5m.
	Interval time.Duration
	// Window of history to inspect. Default: 15m.
	Window time.Duration
	// MinSamples required before a provider is analyzed. Default: 3.
	MinSamples int
	// DropThreshold is the success-rate drop that flags deterioration.
	// Default: 0.1.
	DropThreshold float64
	// ForceOpenConfidence gates the proactive breaker open: only a
	// high-severity trend above this confidence trips it. Default: 0.7.
	ForceOpenConfidence float64
	// ForceOpenCooldown is the cooldown applied to a proactively opened
	// breaker. Zero uses the breaker default.
	ForceOpenCooldown time.Duration
}

// confidenceScale converts a drop magnitude to confidence, capped at 1.
// A drop of 0.25 maps to full confidence.
const confidenceScale = 4.0

// Monitor runs periodic trend analysis over the registry's health history.
type Monitor struct {
	registry *provider.Registry
	breakers *resilience.Breakers
	bus      *monitoring.Bus
	cfg      Config
}

// NewMonitor creates a predictive monitor.
func NewMonitor(registry *provider.Registry, breakers *resilience.Breakers, bus *monitoring.Bus, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 3
	}
	if cfg.DropThreshold <= 0 {
		cfg.DropThreshold = 0.1
	}
	if cfg.ForceOpenConfidence <= 0 {
		cfg.ForceOpenConfidence = 0.7
	}
	return &Monitor{registry: registry, breakers: breakers, bus: bus, cfg: cfg}
}

// Run starts the periodic analysis loop. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "predict"))
	log.Info("starting predictive monitor",
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("window", m.cfg.Window),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("predictive monitor stopped")
			return
		case <-ticker.C:
			trends := m.Analyze()
			for _, tr := range trends {
				if tr.Deteriorating {
					log.Warn("deteriorating provider trend",
						zap.String("provider", tr.ProviderID),
						zap.Float64("drop", tr.Drop),
						zap.Float64("confidence", tr.Confidence),
						zap.String("severity", string(tr.Severity)),
					)
				}
			}
		}
	}
}

// Analyze inspects every provider's recent history once and applies the
// proactive breaker action where warranted. Returns the computed trends.
func (m *Monitor) Analyze() []Trend {
	var trends []Trend
	for _, p := range m.registry.Snapshot() {
		samples := m.registry.RecentMetrics(p.ID, m.cfg.Window)
		if len(samples) < m.cfg.MinSamples {
			continue
		}

		tr := m.trendFor(p.ID, successRates(samples))
		trends = append(trends, tr)

		if tr.Deteriorating && tr.Severity == SeverityHigh && tr.Confidence > m.cfg.ForceOpenConfidence {
			m.breakers.ForceOpen(p.ID, m.cfg.ForceOpenCooldown)
			m.emit(monitoring.Event{
				Type:     monitoring.EventPredictiveFailure,
				Severity: "high",
				Message: fmt.Sprintf("provider %s success rate dropped %.0f%%, circuit opened proactively",
					p.ID, tr.Drop*100),
				Details: map[string]any{
					"provider":   p.ID,
					"drop":       tr.Drop,
					"confidence": tr.Confidence,
					"action":     "circuit_force_open",
				},
			})
		} else if tr.Deteriorating {
			m.emit(monitoring.Event{
				Type:     monitoring.EventPredictiveFailure,
				Severity: "warn",
				Message: fmt.Sprintf("provider %s deteriorating, success rate dropped %.0f%%",
					p.ID, tr.Drop*100),
				Details: map[string]any{
					"provider":   p.ID,
					"drop":       tr.Drop,
					"confidence": tr.Confidence,
					"severity":   string(tr.Severity),
				},
			})
		}
	}
	return trends
}

// trendFor compares the mean of the earliest three samples against the mean
// of the latest three.
func (m *Monitor) trendFor(providerID string, rates []float64) Trend {
	n := 3
	if len(rates) < n {
		n = len(rates)
	}
	early := mean(rates[:n])
	late := mean(rates[len(rates)-n:])
	drop := early - late

	tr := Trend{ProviderID: providerID, Drop: drop}
	if drop <= m.cfg.DropThreshold {
		return tr
	}

	tr.Deteriorating = true
	tr.Confidence = drop * confidenceScale
	if tr.Confidence > 1 {
		tr.Confidence = 1
	}
	switch {
	case drop > 0.3:
		tr.Severity = SeverityHigh
	case drop > 0.2:
		tr.Severity = SeverityMedium
	default:
		tr.Severity = SeverityLow
	}
	return tr
}

func (m *Monitor) emit(e monitoring.Event) {
	if m.bus != nil {
		m.bus.Emit(e)
	}
}

func successRates(samples []model.HealthMetrics) []float64 {
	rates := make([]float64, len(samples))
	for i, s := range samples {
		rates[i] = s.SuccessRate
	}
	return rates
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
