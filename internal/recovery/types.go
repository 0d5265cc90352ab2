// Package recovery coordinates production incident recovery: it builds a
// business-impact-aware recovery context, selects and executes a bounded
// recovery strategy, and documents the outcome for compliance. Incidents move
// through a small state machine and never crash the orchestrator; handler
// failures degrade to a manual-intervention outcome.
package recovery

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/dispatchlab/failover/internal/model"
)

// Status is the state of one incident's recovery.
type Status string

const (
	StatusPending            Status = "pending"
	StatusInProgress         Status = "in_progress"
	StatusSucceeded          Status = "succeeded"
	StatusFailed             Status = "failed"
	StatusPartiallyRecovered Status = "partially_recovered"
	StatusEscalated          Status = "escalated"
	StatusManualIntervention Status = "manual_intervention_required"
)

// Strategy is the business-priority recovery approach selected per incident.
type Strategy string

const (
	StrategyGracefulDegradation Strategy = "graceful_degradation"
	StrategyFailover            Strategy = "failover"
	StrategyIsolate             Strategy = "isolate"
	StrategyRestart             Strategy = "restart"
)

// IncidentContext is the caller-supplied portion of an incident report. The
// orchestrator fills in everything else.
type IncidentContext struct {
	Business         model.BusinessContext `json:"business"`
	Layer            model.SystemLayer     `json:"layer"`
	AffectedServices []string              `json:"affected_services"`

	// Impact overrides the derived business impact when the caller already
	// knows it. Empty means derive from Business.
	Impact model.BusinessImpact `json:"impact,omitempty"`
}

// ProductionRecoveryContext is the full per-incident record. One is created
// per incident and removed from the active set on completion or escalation.
type ProductionRecoveryContext struct {
	RecoveryID        string               `json:"recovery_id"`
	Environment       model.Environment    `json:"environment"`
	Layer             model.SystemLayer    `json:"layer"`
	BusinessImpact    model.BusinessImpact `json:"business_impact"`
	AffectedServices  []string             `json:"affected_services"`
	RevenueAtRisk     float64              `json:"revenue_at_risk"`
	AffectedCustomers int                  `json:"affected_customers"`
	SLABreaches       int                  `json:"sla_breaches"`
	Deadline          time.Time            `json:"deadline"`
	EscalationLevel   int                  `json:"escalation_level"`
	StartedAt         time.Time            `json:"started_at"`
	Status            Status               `json:"status"`
	Strategy          Strategy             `json:"strategy,omitempty"`
}

// Outcome is the structured result of one recovery attempt or subsystem
// handler invocation.
type Outcome struct {
	RecoveryID     string               `json:"recovery_id"`
	Status         Status               `json:"status"`
	Strategy       Strategy             `json:"strategy,omitempty"`
	Layer          model.SystemLayer    `json:"layer"`
	BusinessImpact model.BusinessImpact `json:"business_impact"`
	Actions        []string             `json:"actions"`
	Duration       time.Duration        `json:"duration"`
	ManualSteps    []string             `json:"manual_steps,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// RequiresManualIntervention reports whether an operator must follow up.
func (o Outcome) RequiresManualIntervention() bool {
	return o.Status == StatusManualIntervention || o.Status == StatusEscalated
}

// ComplianceRecord documents a completed recovery for audit.
type ComplianceRecord struct {
	RecoveryID  string               `json:"recovery_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Environment model.Environment    `json:"environment"`
	Layer       model.SystemLayer    `json:"layer"`
	Impact      model.BusinessImpact `json:"impact"`
	Strategy    Strategy             `json:"strategy,omitempty"`
	Status      Status               `json:"status"`
	Actions     []string             `json:"actions"`
	SLABreaches int                  `json:"sla_breaches"`
	Operator    string               `json:"operator"`
	Summary     string               `json:"summary"`
}

// recoveryDeadlines maps business impact to the time allowed for recovery.
// Deadlines tighten monotonically as severity increases.
var recoveryDeadlines = map[model.BusinessImpact]time.Duration{
	model.ImpactMinimal:         time.Hour,
	model.ImpactModerate:        30 * time.Minute,
	model.ImpactSignificant:     15 * time.Minute,
	model.ImpactCritical:        5 * time.Minute,
	model.ImpactRevenueBlocking: time.Minute,
}

// DeadlineFor returns the recovery window allowed for the given impact.
func DeadlineFor(impact model.BusinessImpact) time.Duration {
	if d, ok := recoveryDeadlines[impact]; ok {
		return d
	}
	return recoveryDeadlines[model.ImpactMinimal]
}

// ConfigureDeadlines replaces the deadline table. The table must cover every
// impact level and tighten monotonically with severity; an invalid table is
// rejected and the current one kept.
func ConfigureDeadlines(table map[model.BusinessImpact]time.Duration) error {
	ordered := []model.BusinessImpact{
		model.ImpactMinimal,
		model.ImpactModerate,
		model.ImpactSignificant,
		model.ImpactCritical,
		model.ImpactRevenueBlocking,
	}

	prev := time.Duration(0)
	for i := len(ordered) - 1; i >= 0; i-- {
		d, ok := table[ordered[i]]
		if !ok || d <= 0 {
			return eris.Errorf("recovery: deadline table missing %s", ordered[i])
		}
		if d < prev {
			return eris.Errorf("recovery: deadline for %s is tighter than for a more severe impact", ordered[i])
		}
		prev = d
	}

	recoveryDeadlines = table
	return nil
}

// revenueAtRiskPerMinute is a coarse dollars-per-minute exposure estimate by
// impact level. Tunable, not a behavioral contract.
var revenueAtRiskPerMinute = map[model.BusinessImpact]float64{
	model.ImpactMinimal:         0,
	model.ImpactModerate:        100,
	model.ImpactSignificant:     1000,
	model.ImpactCritical:        10000,
	model.ImpactRevenueBlocking: 50000,
}

// affectedCustomerEstimate is a coarse customer-count estimate by impact.
var affectedCustomerEstimate = map[model.BusinessImpact]int{
	model.ImpactMinimal:         0,
	model.ImpactModerate:        50,
	model.ImpactSignificant:     500,
	model.ImpactCritical:        5000,
	model.ImpactRevenueBlocking: 50000,
}
