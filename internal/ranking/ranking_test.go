package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/failover/internal/model"
)

func routingProviders() []model.ServiceProvider {
	return []model.ServiceProvider{
		{
			ID: "osrm", ServiceType: model.ServiceRouting, Tier: model.TierPrimary,
			Reliability: 0.98, LatencyMs: 800, CostPerRequest: 0.001,
			Config: model.ProviderConfig{Timeout: 2 * time.Second},
		},
		{
			ID: "graphhopper", ServiceType: model.ServiceRouting, Tier: model.TierSecondary,
			Reliability: 0.99, LatencyMs: 1200, CostPerRequest: 0.005,
			Config: model.ProviderConfig{Timeout: 3 * time.Second},
		},
		{
			ID: "valhalla", ServiceType: model.ServiceRouting, Tier: model.TierTertiary,
			Reliability: 0.90, LatencyMs: 2500, CostPerRequest: 0.002,
			Config: model.ProviderConfig{Timeout: 4 * time.Second},
		},
	}
}

func TestRank_HigherScoreFirst(t *testing.T) {
	t.Parallel()

	a := model.ServiceProvider{ID: "a", Tier: model.TierPrimary, Reliability: 0.99, LatencyMs: 500, CostPerRequest: 0.001}
	b := model.ServiceProvider{ID: "b", Tier: model.TierSecondary, Reliability: 0.70, LatencyMs: 3000, CostPerRequest: 0.001}

	ranked := Rank([]model.ServiceProvider{b, a}, model.BusinessContext{Urgency: model.UrgencyMedium}, model.Requirements{})
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Provider.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_Deterministic(t *testing.T) {
	t.Parallel()

	bc := model.BusinessContext{Urgency: model.UrgencyHigh, MaxCostIncreasePct: 1000}
	first := Rank(routingProviders(), bc, model.Requirements{})
	for i := 0; i < 10; i++ {
		again := Rank(routingProviders(), bc, model.Requirements{})
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Provider.ID, again[j].Provider.ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}

func TestRank_TieBrokenByTierThenID(t *testing.T) {
	t.Parallel()

	// Identical metrics, different tiers: tier bonus separates them, and
	// within the same tier the id decides.
	mk := func(id string, tier model.Tier) model.ServiceProvider {
		return model.ServiceProvider{ID: id, Tier: tier, Reliability: 0.95, LatencyMs: 1000, CostPerRequest: 0.002}
	}

	ranked := Rank(
		[]model.ServiceProvider{mk("zeta", model.TierSecondary), mk("alpha", model.TierSecondary), mk("root", model.TierPrimary)},
		model.BusinessContext{Urgency: model.UrgencyLow},
		model.Requirements{},
	)
	require.Len(t, ranked, 3)
	assert.Equal(t, "root", ranked[0].Provider.ID)
	assert.Equal(t, "alpha", ranked[1].Provider.ID)
	assert.Equal(t, "zeta", ranked[2].Provider.ID)
}

func TestRank_CostGateExcludesExpensiveProvider(t *testing.T) {
	t.Parallel()

	// graphhopper is +400% over the osrm baseline; a 300% cap excludes it
	// for non-critical urgency.
	bc := model.BusinessContext{Urgency: model.UrgencyHigh, MaxCostIncreasePct: 300}
	ranked := Rank(routingProviders(), bc, model.Requirements{})

	for _, s := range ranked {
		assert.NotEqual(t, "graphhopper", s.Provider.ID)
	}
	require.Len(t, ranked, 2)
}

func TestRank_CostGateRelaxedForCritical(t *testing.T) {
	t.Parallel()

	bc := model.BusinessContext{Urgency: model.UrgencyCritical, MaxCostIncreasePct: 300}
	ranked := Rank(routingProviders(), bc, model.Requirements{})

	ids := make([]string, 0, len(ranked))
	for _, s := range ranked {
		ids = append(ids, s.Provider.ID)
	}
	assert.Contains(t, ids, "graphhopper", "critical urgency admits over-budget providers")
	require.Len(t, ranked, 3)

	// Admitted, but not promoted above the cheaper primary.
	assert.Equal(t, "osrm", ranked[0].Provider.ID)
}

func TestRank_RequirementsFilter(t *testing.T) {
	t.Parallel()

	req := model.Requirements{MinReliability: 0.95, MaxLatencyMs: 2000}
	ranked := Rank(routingProviders(), model.BusinessContext{Urgency: model.UrgencyMedium, MaxCostIncreasePct: 1000}, req)

	for _, s := range ranked {
		assert.GreaterOrEqual(t, s.Provider.Reliability, 0.95)
		assert.LessOrEqual(t, s.Provider.LatencyMs, 2000.0)
	}
	require.Len(t, ranked, 2, "valhalla fails both requirements")
}

func TestScore_CriticalUrgencyShiftsWeights(t *testing.T) {
	t.Parallel()

	// An expensive but fast provider gains under critical urgency: the cost
	// weight halves and the low-latency bonus applies.
	p := model.ServiceProvider{ID: "fast", Tier: model.TierSecondary, Reliability: 0.97, LatencyMs: 300, CostPerRequest: 0.01}

	normal := Score(p, model.BusinessContext{Urgency: model.UrgencyMedium}, 0.001)
	critical := Score(p, model.BusinessContext{Urgency: model.UrgencyCritical}, 0.001)
	assert.Greater(t, critical, normal)
}

func TestScore_RevenueReliabilityBonus(t *testing.T) {
	t.Parallel()

	p := model.ServiceProvider{ID: "solid", Tier: model.TierPrimary, Reliability: 0.995, LatencyMs: 900, CostPerRequest: 0.002}

	plain := Score(p, model.BusinessContext{Urgency: model.UrgencyMedium}, 0.002)
	revenue := Score(p, model.BusinessContext{Urgency: model.UrgencyMedium, RevenueImpacting: true}, 0.002)
	assert.InDelta(t, 5, revenue-plain, 0.0001)
}

func TestCostIncreasePct(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 400, CostIncreasePct(0.005, 0.001), 0.0001)
	assert.Equal(t, 0.0, CostIncreasePct(0.001, 0.005), "cheaper than baseline is zero increase")
	assert.Equal(t, 0.0, CostIncreasePct(0.01, 0), "zero baseline yields zero")
}

func TestRank_EmptyInput(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Rank(nil, model.BusinessContext{}, model.Requirements{}))
}
