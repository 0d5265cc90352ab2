package recovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/monitoring"
)

// DatabaseMigrationIncident describes a failed database migration.
type DatabaseMigrationIncident struct {
	MigrationVersion string   `json:"migration_version"`
	AffectedTables   []string `json:"affected_tables"`
	DataLossRisk     bool     `json:"data_loss_risk"`
}

// MLPipelineIncident describes a failed ML pipeline or serving model.
type MLPipelineIncident struct {
	PipelineName  string `json:"pipeline_name"`
	FailedModel   string `json:"failed_model"`
	FallbackModel string `json:"fallback_model"`
}

// SecretsIncident describes a secrets-management failure.
type SecretsIncident struct {
	SecretName     string `json:"secret_name"`
	RotationFailed bool   `json:"rotation_failed"`
}

// HandleDatabaseMigrationError recovers from a failed migration: assess the
// data-loss risk, roll the schema back with a matching strategy, and notify
// the owning team. Its own failures degrade to a manual-intervention outcome.
func (o *Orchestrator) HandleDatabaseMigrationError(ctx context.Context, cause error, env model.Environment, incident DatabaseMigrationIncident) (out Outcome) {
	rc := o.buildContext(env, IncidentContext{
		Layer:  model.LayerDatabase,
		Impact: databaseImpact(incident),
	})
	start := o.nowFunc()
	defer o.guardHandler(rc, start, &out)

	strategy := DBRollbackGradual
	if incident.DataLossRisk {
		strategy = DBRollbackImmediate
	}

	res, err := o.RollbackDatabase(ctx, strategy)
	if err != nil {
		return o.escalate(rc, fmt.Sprintf("database rollback failed: %v", err), o.nowFunc().Sub(start))
	}

	actions := append([]string{
		fmt.Sprintf("migration %s rolled back with %s strategy", incident.MigrationVersion, res.Strategy),
	}, res.Steps...)
	actions = append(actions, "database team notified")

	o.notifyTeam(rc, "database", cause)
	o.complete(rc, handlerStatus(res), actions, o.nowFunc().Sub(start))

	return Outcome{
		RecoveryID:     rc.RecoveryID,
		Status:         handlerStatus(res),
		Layer:          model.LayerDatabase,
		BusinessImpact: rc.BusinessImpact,
		Actions:        actions,
		Duration:       o.nowFunc().Sub(start),
	}
}

// HandleAIMLPipelineError recovers a broken ML pipeline by activating the
// fallback model when one exists, then rolling the failed model back.
func (o *Orchestrator) HandleAIMLPipelineError(ctx context.Context, cause error, env model.Environment, incident MLPipelineIncident) (out Outcome) {
	rc := o.buildContext(env, IncidentContext{
		Layer:  model.LayerMLPipeline,
		Impact: model.ImpactSignificant,
	})
	start := o.nowFunc()
	defer o.guardHandler(rc, start, &out)

	var actions []string
	strategy := ModelRollbackCanary
	if incident.FallbackModel != "" {
		actions = append(actions, fmt.Sprintf("fallback model %s activated for %s", incident.FallbackModel, incident.PipelineName))
		strategy = ModelRollbackImmediate
	}

	res, err := o.RollbackModel(ctx, strategy)
	if err != nil {
		return o.escalate(rc, fmt.Sprintf("model rollback failed: %v", err), o.nowFunc().Sub(start))
	}

	actions = append(actions, res.Steps...)
	actions = append(actions, "ml platform team notified")

	o.notifyTeam(rc, "ml_platform", cause)
	o.complete(rc, handlerStatus(res), actions, o.nowFunc().Sub(start))

	return Outcome{
		RecoveryID:     rc.RecoveryID,
		Status:         handlerStatus(res),
		Layer:          model.LayerMLPipeline,
		BusinessImpact: rc.BusinessImpact,
		Actions:        actions,
		Duration:       o.nowFunc().Sub(start),
	}
}

// HandleSecretsManagementError recovers a secrets failure by activating the
// emergency secret and forcing a rotation. Secrets incidents always alert
// the security team at critical severity.
func (o *Orchestrator) HandleSecretsManagementError(ctx context.Context, cause error, env model.Environment, incident SecretsIncident) (out Outcome) {
	rc := o.buildContext(env, IncidentContext{
		Layer:  model.LayerSecrets,
		Impact: model.ImpactCritical,
	})
	start := o.nowFunc()
	defer o.guardHandler(rc, start, &out)

	if err := ctx.Err(); err != nil {
		return o.escalate(rc, err.Error(), o.nowFunc().Sub(start))
	}

	actions := []string{
		fmt.Sprintf("emergency secret activated for %s", incident.SecretName),
	}
	if incident.RotationFailed {
		actions = append(actions, fmt.Sprintf("forced rotation scheduled for %s", incident.SecretName))
	}
	actions = append(actions, "security team notified")

	o.notifyTeam(rc, "security", cause)
	o.complete(rc, StatusSucceeded, actions, o.nowFunc().Sub(start))

	return Outcome{
		RecoveryID:     rc.RecoveryID,
		Status:         StatusSucceeded,
		Layer:          model.LayerSecrets,
		BusinessImpact: rc.BusinessImpact,
		Actions:        actions,
		Duration:       o.nowFunc().Sub(start),
	}
}

// guardHandler converts a handler panic into a conservative manual-
// intervention outcome so subsystem handlers never leave incident state
// ambiguous.
func (o *Orchestrator) guardHandler(rc *ProductionRecoveryContext, start time.Time, out *Outcome) {
	if r := recover(); r != nil {
		zap.L().Error("recovery handler panicked",
			zap.String("component", "recovery"),
			zap.String("recovery_id", rc.RecoveryID),
			zap.Any("panic", r),
		)
		*out = o.escalate(rc, fmt.Sprintf("handler panicked: %v", r), o.nowFunc().Sub(start))
	}
}

func (o *Orchestrator) notifyTeam(rc *ProductionRecoveryContext, team string, cause error) {
	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	o.emit(monitoring.Event{
		Type:     monitoring.EventRecoveryInitiated,
		Severity: severityFor(rc.BusinessImpact),
		Message:  fmt.Sprintf("%s incident %s assigned to %s team", rc.Layer, rc.RecoveryID, team),
		Details: map[string]any{
			"recovery_id": rc.RecoveryID,
			"team":        team,
			"cause":       causeMsg,
		},
	})
}

func handlerStatus(res RollbackResult) Status {
	if !res.Executed {
		return StatusManualIntervention
	}
	if !res.ChecksPassed {
		return StatusPartiallyRecovered
	}
	return StatusSucceeded
}

func databaseImpact(incident DatabaseMigrationIncident) model.BusinessImpact {
	if incident.DataLossRisk {
		return model.ImpactRevenueBlocking
	}
	return model.ImpactCritical
}
