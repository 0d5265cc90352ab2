// Package plan builds execution plans ahead of cascade runs: the ranked
// provider list with per-provider expectations, a qualitative risk
// assessment, and an aggregate outcome estimate. Plans are retained for
// post-hoc audit and never mutated after creation.
package plan

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/provider"
	"github.com/dispatchlab/failover/internal/ranking"
)

// RiskLevel is the qualitative risk of executing a plan.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ProviderExpectation is the predicted behavior of one ranked provider.
type ProviderExpectation struct {
	ProviderID         string     `json:"provider_id"`
	Tier               model.Tier `json:"tier"`
	Score              float64    `json:"score"`
	ExpectedCost       float64    `json:"expected_cost"`
	ExpectedLatencyMs  float64    `json:"expected_latency_ms"`
	SuccessProbability float64    `json:"success_probability"`
	CostIncreasePct    float64    `json:"cost_increase_pct"`
}

// OutcomeEstimate aggregates the plan's expected outcome.
type OutcomeEstimate struct {
	// SuccessProbability that at least one ranked provider succeeds.
	SuccessProbability float64 `json:"success_probability"`
	// WorstCaseCostIncreasePct if the cascade falls to the last provider.
	WorstCaseCostIncreasePct float64 `json:"worst_case_cost_increase_pct"`
	// WorstCaseLatencyMs is the sum of all attempt timeouts, the bound a
	// caller must budget for.
	WorstCaseLatencyMs float64              `json:"worst_case_latency_ms"`
	BusinessImpact     model.BusinessImpact `json:"business_impact"`
}

// ExecutionPlan is the immutable plan for one cascade invocation.
type ExecutionPlan struct {
	ID           string                `json:"id"`
	ServiceType  model.ServiceType     `json:"service_type"`
	CreatedAt    time.Time             `json:"created_at"`
	Ranked       []ranking.Scored      `json:"ranked"`
	Expectations []ProviderExpectation `json:"expectations"`
	Risk         RiskLevel             `json:"risk"`
	Estimate     OutcomeEstimate       `json:"estimate"`
}

// Generator builds and retains execution plans.
type Generator struct {
	registry *provider.Registry

	mu       sync.RWMutex
	plans    map[string]*ExecutionPlan
	order    []string
	maxPlans int

	nowFunc func() time.Time
}

// NewGenerator creates a plan generator retaining up to maxPlans plans
// (default 1000) for audit.
func NewGenerator(registry *provider.Registry, maxPlans int) *Generator {
	if maxPlans <= 0 {
		maxPlans = 1000
	}
	return &Generator{
		registry: registry,
		plans:    make(map[string]*ExecutionPlan),
		maxPlans: maxPlans,
		nowFunc:  time.Now,
	}
}

// Build ranks the registered providers for the service type under the given
// context and produces a retained plan.
func (g *Generator) Build(st model.ServiceType, bc model.BusinessContext, req model.Requirements) (*ExecutionPlan, error) {
	providers := g.registry.ProvidersFor(st)
	if len(providers) == 0 {
		return nil, eris.Errorf("plan: no providers registered for service type %s", st)
	}

	ranked := ranking.Rank(providers, bc, req)

	var baseline float64
	if len(ranked) > 0 {
		baseline = ranked[0].Provider.CostPerRequest
	}

	expectations := make([]ProviderExpectation, 0, len(ranked))
	failAll := 1.0
	worstLatency := 0.0
	worstCost := 0.0
	for _, s := range ranked {
		p := s.Provider
		expectations = append(expectations, ProviderExpectation{
			ProviderID:         p.ID,
			Tier:               p.Tier,
			Score:              s.Score,
			ExpectedCost:       p.CostPerRequest,
			ExpectedLatencyMs:  p.LatencyMs,
			SuccessProbability: p.Reliability,
			CostIncreasePct:    ranking.CostIncreasePct(p.CostPerRequest, baseline),
		})
		failAll *= 1 - p.Reliability
		worstLatency += attemptTimeoutMs(p)
		if inc := ranking.CostIncreasePct(p.CostPerRequest, baseline); inc > worstCost {
			worstCost = inc
		}
	}

	successProb := 1 - failAll
	estimate := OutcomeEstimate{
		SuccessProbability:       successProb,
		WorstCaseCostIncreasePct: worstCost,
		WorstCaseLatencyMs:       worstLatency,
		BusinessImpact:           estimateImpact(successProb, bc),
	}

	p := &ExecutionPlan{
		ID:           uuid.NewString(),
		ServiceType:  st,
		CreatedAt:    g.nowFunc().UTC(),
		Ranked:       ranked,
		Expectations: expectations,
		Risk:         assessRisk(ranked, successProb, worstCost),
		Estimate:     estimate,
	}
	g.retain(p)
	return p, nil
}

// Lookup returns a retained plan by id.
func (g *Generator) Lookup(id string) (*ExecutionPlan, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.plans[id]
	return p, ok
}

func (g *Generator) retain(p *ExecutionPlan) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.plans[p.ID] = p
	g.order = append(g.order, p.ID)
	for len(g.order) > g.maxPlans {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.plans, oldest)
	}
}

// assessRisk derives a qualitative risk from provider count, health spread,
// and cost exposure.
func assessRisk(ranked []ranking.Scored, successProb, worstCostPct float64) RiskLevel {
	switch {
	case len(ranked) < 2 || successProb < 0.9:
		return RiskHigh
	case successProb < 0.99 || worstCostPct > 200:
		return RiskMedium
	default:
		return RiskLow
	}
}

func estimateImpact(successProb float64, bc model.BusinessContext) model.BusinessImpact {
	if successProb >= 0.99 {
		return model.ImpactMinimal
	}
	return model.AssessImpact(bc)
}

func attemptTimeoutMs(p model.ServiceProvider) float64 {
	ms := float64(p.Config.Timeout.Milliseconds())
	if p.Tier != model.TierPrimary {
		ms *= 1.5
	}
	return ms
}
