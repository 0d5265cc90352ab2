package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/monitoring"
	"github.com/dispatchlab/failover/internal/provider"
	"github.com/dispatchlab/failover/internal/resilience"
)

// Health-score cutoffs for strategy selection.
const (
	restartHealthCutoff  = 0.3
	failoverHealthCutoff = 0.6
)

// Orchestrator owns the incident state machine. Constructed once at the
// composition root and shared by reference; all state is behind the mutex.
type Orchestrator struct {
	registry *provider.Registry
	breakers *resilience.Breakers
	bus      *monitoring.Bus

	mu     sync.Mutex
	active map[string]*ProductionRecoveryContext
	docs   []ComplianceRecord

	nowFunc func() time.Time
	idFunc  func() string
}

// NewOrchestrator creates a recovery orchestrator over the shared provider
// registry and breaker table.
func NewOrchestrator(registry *provider.Registry, breakers *resilience.Breakers, bus *monitoring.Bus) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		breakers: breakers,
		bus:      bus,
		active:   make(map[string]*ProductionRecoveryContext),
		nowFunc:  time.Now,
		idFunc:   func() string { return uuid.NewString() },
	}
}

// ExecuteProductionRecovery runs the full recovery flow for one incident:
// build the context, alert, select and execute a strategy by aggregate health
// of the affected systems, validate, and document. A panic anywhere inside
// the flow escalates to a manual-intervention outcome instead of propagating.
func (o *Orchestrator) ExecuteProductionRecovery(ctx context.Context, cause error, env model.Environment, incident IncidentContext) (out Outcome) {
	rc := o.buildContext(env, incident)
	start := o.nowFunc()
	log := zap.L().With(
		zap.String("component", "recovery"),
		zap.String("recovery_id", rc.RecoveryID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovery flow panicked, escalating",
				zap.Any("panic", r),
			)
			out = o.escalate(rc, fmt.Sprintf("recovery flow panicked: %v", r), o.nowFunc().Sub(start))
		}
	}()

	o.mu.Lock()
	rc.Status = StatusInProgress
	o.active[rc.RecoveryID] = rc
	o.mu.Unlock()

	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	o.emit(monitoring.Event{
		Type:     monitoring.EventRecoveryInitiated,
		Severity: severityFor(rc.BusinessImpact),
		Message:  fmt.Sprintf("production recovery %s initiated for %s incident", rc.RecoveryID, rc.Layer),
		Details: map[string]any{
			"recovery_id": rc.RecoveryID,
			"environment": string(rc.Environment),
			"impact":      string(rc.BusinessImpact),
			"deadline":    rc.Deadline,
			"cause":       causeMsg,
		},
	})

	health := o.aggregateHealth(rc.AffectedServices)
	rc.Strategy = strategyForHealth(health)
	log.Info("recovery strategy selected",
		zap.String("strategy", string(rc.Strategy)),
		zap.Float64("aggregate_health", health),
		zap.String("impact", string(rc.BusinessImpact)),
	)

	actions, err := o.executeStrategy(ctx, rc)
	dur := o.nowFunc().Sub(start)
	if o.nowFunc().After(rc.Deadline) {
		rc.SLABreaches++
		log.Warn("recovery finished past the impact deadline",
			zap.Time("deadline", rc.Deadline),
			zap.Duration("duration", dur),
		)
	}
	if err != nil {
		return o.escalate(rc, err.Error(), dur)
	}

	status := o.validateRecovery(rc, health)
	o.complete(rc, status, actions, dur)

	return Outcome{
		RecoveryID:     rc.RecoveryID,
		Status:         status,
		Strategy:       rc.Strategy,
		Layer:          rc.Layer,
		BusinessImpact: rc.BusinessImpact,
		Actions:        actions,
		Duration:       dur,
	}
}

// Active returns copies of all in-flight recovery contexts.
func (o *Orchestrator) Active() []ProductionRecoveryContext {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]ProductionRecoveryContext, 0, len(o.active))
	for _, rc := range o.active {
		out = append(out, *rc)
	}
	return out
}

// Documentation returns the compliance records accumulated so far, oldest
// first.
func (o *Orchestrator) Documentation() []ComplianceRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]ComplianceRecord, len(o.docs))
	copy(out, o.docs)
	return out
}

func (o *Orchestrator) buildContext(env model.Environment, incident IncidentContext) *ProductionRecoveryContext {
	impact := incident.Impact
	if impact == "" {
		impact = model.AssessImpact(incident.Business)
	}
	layer := incident.Layer
	if layer == "" {
		layer = model.LayerService
	}

	now := o.nowFunc()
	window := DeadlineFor(impact)
	return &ProductionRecoveryContext{
		RecoveryID:        o.idFunc(),
		Environment:       env,
		Layer:             layer,
		BusinessImpact:    impact,
		AffectedServices:  incident.AffectedServices,
		RevenueAtRisk:     revenueAtRiskPerMinute[impact] * window.Minutes(),
		AffectedCustomers: affectedCustomerEstimate[impact],
		Deadline:          now.Add(window),
		StartedAt:         now,
		Status:            StatusPending,
	}
}

// aggregateHealth scores the affected providers in [0,1]: reliability scaled
// by a coarse health-status factor. Unknown ids score neutral so a typo in an
// incident report does not force a full restart.
func (o *Orchestrator) aggregateHealth(services []string) float64 {
	if o.registry == nil {
		return 1
	}

	var providers []model.ServiceProvider
	if len(services) == 0 {
		providers = o.registry.Snapshot()
	} else {
		for _, id := range services {
			p, ok := o.registry.Get(id)
			if !ok {
				providers = append(providers, model.ServiceProvider{Reliability: 0.5, HealthStatus: model.HealthDegraded})
				continue
			}
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		return 1
	}

	sum := 0.0
	for _, p := range providers {
		sum += p.Reliability * healthFactor(p.HealthStatus)
	}
	return sum / float64(len(providers))
}

func healthFactor(s model.HealthStatus) float64 {
	switch s {
	case model.HealthHealthy:
		return 1
	case model.HealthDegraded:
		return 0.7
	case model.HealthUnhealthy:
		return 0.3
	default:
		return 0
	}
}

func strategyForHealth(health float64) Strategy {
	switch {
	case health < restartHealthCutoff:
		return StrategyRestart
	case health < failoverHealthCutoff:
		return StrategyFailover
	default:
		return StrategyGracefulDegradation
	}
}

// executeStrategy applies the selected strategy's bounded control actions to
// the shared breaker table and registry.
func (o *Orchestrator) executeStrategy(ctx context.Context, rc *ProductionRecoveryContext) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var actions []string
	switch rc.Strategy {
	case StrategyRestart:
		// Full restart cascade: clear breaker state so restarted systems
		// get a clean slate.
		for _, id := range rc.AffectedServices {
			if o.breakers != nil {
				o.breakers.Reset(id)
			}
			actions = append(actions, fmt.Sprintf("restart initiated for %s", id))
			actions = append(actions, fmt.Sprintf("circuit breaker reset for %s", id))
		}
		if len(rc.AffectedServices) == 0 {
			actions = append(actions, "full restart cascade initiated")
		}

	case StrategyFailover:
		// Route traffic away from the affected providers: force their
		// breakers open so cascades fall through to healthy tiers.
		deadline := DeadlineFor(rc.BusinessImpact)
		for _, id := range rc.AffectedServices {
			if o.breakers != nil {
				o.breakers.ForceOpen(id, deadline)
			}
			actions = append(actions, fmt.Sprintf("traffic failed over away from %s", id))
		}
		if len(rc.AffectedServices) == 0 {
			actions = append(actions, "failover requested with no affected services listed")
		}

	case StrategyIsolate:
		for _, id := range rc.AffectedServices {
			if o.breakers != nil {
				o.breakers.ForceOpen(id, 0)
			}
			actions = append(actions, fmt.Sprintf("%s isolated from traffic", id))
		}

	case StrategyGracefulDegradation:
		actions = append(actions, "degraded service mode enabled")
		o.emit(monitoring.Event{
			Type:     monitoring.EventProviderDegraded,
			Severity: "warn",
			Message:  "graceful degradation enabled during recovery",
			Details:  map[string]any{"recovery_id": rc.RecoveryID},
		})

	default:
		return nil, fmt.Errorf("unknown recovery strategy %q", rc.Strategy)
	}

	actions = append(actions, "business continuity validated")
	return actions, nil
}

// validateRecovery re-scores the affected systems after the strategy ran. A
// failover that opened breakers is still a success for the business flow; a
// restart with no measurable improvement is only partial.
func (o *Orchestrator) validateRecovery(rc *ProductionRecoveryContext, before float64) Status {
	if rc.Strategy == StrategyFailover || rc.Strategy == StrategyIsolate || rc.Strategy == StrategyGracefulDegradation {
		return StatusSucceeded
	}

	after := o.aggregateHealth(rc.AffectedServices)
	if after >= failoverHealthCutoff || after > before {
		return StatusSucceeded
	}
	return StatusPartiallyRecovered
}

func (o *Orchestrator) complete(rc *ProductionRecoveryContext, status Status, actions []string, dur time.Duration) {
	o.mu.Lock()
	rc.Status = status
	delete(o.active, rc.RecoveryID)
	o.docs = append(o.docs, ComplianceRecord{
		RecoveryID:  rc.RecoveryID,
		Timestamp:   o.nowFunc().UTC(),
		Environment: rc.Environment,
		Layer:       rc.Layer,
		Impact:      rc.BusinessImpact,
		Strategy:    rc.Strategy,
		Status:      status,
		Actions:     actions,
		SLABreaches: rc.SLABreaches,
		Operator:    "automated",
		Summary:     fmt.Sprintf("%s recovery %s in %s", rc.Strategy, status, dur.Round(time.Millisecond)),
	})
	o.mu.Unlock()

	o.emit(monitoring.Event{
		Type:     monitoring.EventRecoveryCompleted,
		Severity: "info",
		Message:  fmt.Sprintf("production recovery %s %s", rc.RecoveryID, status),
		Details: map[string]any{
			"recovery_id": rc.RecoveryID,
			"status":      string(status),
			"strategy":    string(rc.Strategy),
			"duration":    dur.String(),
		},
	})
}

// escalate records a manual-intervention outcome. Used both for strategy
// failures and for panics caught by the top-level recover.
func (o *Orchestrator) escalate(rc *ProductionRecoveryContext, reason string, dur time.Duration) Outcome {
	rc.EscalationLevel++

	o.mu.Lock()
	rc.Status = StatusManualIntervention
	delete(o.active, rc.RecoveryID)
	o.docs = append(o.docs, ComplianceRecord{
		RecoveryID:  rc.RecoveryID,
		Timestamp:   o.nowFunc().UTC(),
		Environment: rc.Environment,
		Layer:       rc.Layer,
		Impact:      rc.BusinessImpact,
		Strategy:    rc.Strategy,
		Status:      StatusManualIntervention,
		SLABreaches: rc.SLABreaches,
		Operator:    "automated",
		Summary:     "escalated: " + reason,
	})
	o.mu.Unlock()

	o.emit(monitoring.Event{
		Type:     monitoring.EventRecoveryEscalated,
		Severity: "critical",
		Message:  fmt.Sprintf("production recovery %s escalated: %s", rc.RecoveryID, reason),
		Details: map[string]any{
			"recovery_id":      rc.RecoveryID,
			"escalation_level": rc.EscalationLevel,
			"reason":           reason,
		},
	})

	return Outcome{
		RecoveryID:     rc.RecoveryID,
		Status:         StatusManualIntervention,
		Strategy:       rc.Strategy,
		Layer:          rc.Layer,
		BusinessImpact: rc.BusinessImpact,
		Duration:       dur,
		ManualSteps: []string{
			"page the on-call operator",
			"review the compliance record for this recovery id",
			"confirm affected systems are stable before closing the incident",
		},
		Error: reason,
	}
}

func (o *Orchestrator) emit(e monitoring.Event) {
	if o.bus != nil {
		o.bus.Emit(e)
	}
}

func severityFor(impact model.BusinessImpact) string {
	if impact.Severity() >= model.ImpactCritical.Severity() {
		return "critical"
	}
	if impact.Severity() >= model.ImpactSignificant.Severity() {
		return "high"
	}
	return "warn"
}
