// Package ranking scores and orders providers for a call using weighted,
// business-context-aware criteria. Rank is a pure function of the provider
// snapshots and the call context, so identical inputs always produce the
// same ordering.
package ranking

import (
	"sort"

	"github.com/dispatchlab/failover/internal/model"
)

// Weight shares before renormalization. Cost drops to criticalCostWeight
// under critical urgency — price matters less under time pressure.
const (
	reliabilityWeight  = 0.40
	latencyWeight      = 0.25
	costWeight         = 0.20
	criticalCostWeight = 0.10

	// latencyDivisor converts latency to a 0-100 score:
	// score = max(0, 100 - latencyMs/latencyDivisor).
	latencyDivisor = 50.0

	// costPenaltyDivisor converts cost-increase percent to score loss.
	costPenaltyDivisor = 5.0

	// lowLatencyFloorMs qualifies a provider for the critical-urgency
	// latency bonus.
	lowLatencyFloorMs = 2000.0

	// highReliabilityBar qualifies a provider for the revenue-impacting
	// reliability bonus.
	highReliabilityBar = 0.99
)

// Scored pairs a provider snapshot with its computed score.
type Scored struct {
	Provider model.ServiceProvider `json:"provider"`
	Score    float64               `json:"score"`
}

// Rank filters and orders the providers for the given context. Providers
// failing the cost gate or the caller's hard requirements are excluded
// entirely unless urgency is critical; the remainder are ordered by score
// descending with ties broken by tier then id.
//
// The cost gate runs before ranking, not per-attempt during the cascade, so
// an excluded provider is never invoked and never billed.
func Rank(providers []model.ServiceProvider, bc model.BusinessContext, req model.Requirements) []Scored {
	baseline := baselineCost(providers)
	critical := bc.Urgency == model.UrgencyCritical

	var admitted []model.ServiceProvider
	for _, p := range providers {
		if !critical && !admissible(p, bc, req, baseline) {
			continue
		}
		admitted = append(admitted, p)
	}

	scored := make([]Scored, 0, len(admitted))
	for _, p := range admitted {
		scored = append(scored, Scored{Provider: p, Score: Score(p, bc, baseline)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		a, b := scored[i].Provider, scored[j].Provider
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() < b.Tier.Rank()
		}
		return a.ID < b.ID
	})

	return scored
}

// Score computes the weighted score for one provider. Exported so the plan
// generator can report per-provider expectations without re-ranking.
func Score(p model.ServiceProvider, bc model.BusinessContext, baselineCostPerReq float64) float64 {
	wCost := costWeight
	if bc.Urgency == model.UrgencyCritical {
		wCost = criticalCostWeight
	}
	total := reliabilityWeight + latencyWeight + wCost

	relScore := p.Reliability * 100

	latScore := 100 - p.LatencyMs/latencyDivisor
	if latScore < 0 {
		latScore = 0
	}

	costScore := 100 - CostIncreasePct(p.CostPerRequest, baselineCostPerReq)/costPenaltyDivisor
	if costScore < 0 {
		costScore = 0
	}

	score := (reliabilityWeight*relScore + latencyWeight*latScore + wCost*costScore) / total

	score += tierBonus(p.Tier)

	if bc.Urgency == model.UrgencyCritical && p.LatencyMs < lowLatencyFloorMs {
		score += 5
	}
	if bc.RevenueImpacting && p.Reliability > highReliabilityBar {
		score += 5
	}

	return score
}

// CostIncreasePct returns the percent cost increase of cost over baseline.
// A zero baseline yields zero increase.
func CostIncreasePct(cost, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	pct := (cost - baseline) / baseline * 100
	if pct < 0 {
		return 0
	}
	return pct
}

func admissible(p model.ServiceProvider, bc model.BusinessContext, req model.Requirements, baseline float64) bool {
	if bc.MaxCostIncreasePct > 0 && CostIncreasePct(p.CostPerRequest, baseline) > bc.MaxCostIncreasePct {
		return false
	}
	if req.MinReliability > 0 && p.Reliability < req.MinReliability {
		return false
	}
	if req.MaxLatencyMs > 0 && p.LatencyMs > req.MaxLatencyMs {
		return false
	}
	return true
}

// baselineCost is the cost of the best-tier provider, the reference point
// for cost-increase calculations.
func baselineCost(providers []model.ServiceProvider) float64 {
	best := -1
	cost := 0.0
	for _, p := range providers {
		if best == -1 || p.Tier.Rank() < best {
			best = p.Tier.Rank()
			cost = p.CostPerRequest
		}
	}
	return cost
}

func tierBonus(t model.Tier) float64 {
	switch t {
	case model.TierPrimary:
		return 6
	case model.TierSecondary:
		return 4
	case model.TierTertiary:
		return 2
	default:
		return 0
	}
}
