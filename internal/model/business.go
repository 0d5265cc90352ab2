package model

// Urgency classifies how time-critical a call is.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// BusinessContext carries the business attributes of a single call, used to
// bias provider selection and breaker sensitivity.
type BusinessContext struct {
	Urgency            Urgency `json:"urgency"`
	CustomerFacing     bool    `json:"customer_facing"`
	RevenueImpacting   bool    `json:"revenue_impacting"`
	MaxCostIncreasePct float64 `json:"max_cost_increase_pct"`
}

// Requirements constrains what results a caller will accept.
type Requirements struct {
	MaxLatencyMs         float64 `json:"max_latency_ms"`
	MinReliability       float64 `json:"min_reliability"`
	AllowDegradedService bool    `json:"allow_degraded_service"`
	AllowCachedData      bool    `json:"allow_cached_data"`
}

// DegradationLevel measures how far from the primary path a result came.
type DegradationLevel string

const (
	DegradationNone     DegradationLevel = "none"
	DegradationMinor    DegradationLevel = "minor"
	DegradationModerate DegradationLevel = "moderate"
	DegradationSevere   DegradationLevel = "severe"
)

// DegradationForTier maps a provider tier to the degradation level of a
// result served from that tier.
func DegradationForTier(t Tier) DegradationLevel {
	switch t {
	case TierPrimary:
		return DegradationNone
	case TierSecondary:
		return DegradationMinor
	case TierTertiary:
		return DegradationModerate
	default:
		return DegradationSevere
	}
}

// BusinessImpact classifies the blast radius of a failure or incident.
type BusinessImpact string

const (
	ImpactMinimal         BusinessImpact = "minimal"
	ImpactModerate        BusinessImpact = "moderate"
	ImpactSignificant     BusinessImpact = "significant"
	ImpactCritical        BusinessImpact = "critical"
	ImpactRevenueBlocking BusinessImpact = "revenue_blocking"
)

// Severity returns an ordinal severity for the impact (higher is worse).
func (b BusinessImpact) Severity() int {
	switch b {
	case ImpactMinimal:
		return 0
	case ImpactModerate:
		return 1
	case ImpactSignificant:
		return 2
	case ImpactCritical:
		return 3
	case ImpactRevenueBlocking:
		return 4
	default:
		return 0
	}
}

// AssessImpact derives a business impact from call context after exhaustion.
func AssessImpact(bc BusinessContext) BusinessImpact {
	switch {
	case bc.RevenueImpacting && bc.Urgency == UrgencyCritical:
		return ImpactRevenueBlocking
	case bc.RevenueImpacting:
		return ImpactCritical
	case bc.CustomerFacing && bc.Urgency == UrgencyCritical:
		return ImpactCritical
	case bc.CustomerFacing:
		return ImpactSignificant
	case bc.Urgency == UrgencyHigh || bc.Urgency == UrgencyCritical:
		return ImpactModerate
	default:
		return ImpactMinimal
	}
}

// SystemLayer identifies the subsystem an incident originated in.
type SystemLayer string

const (
	LayerDatabase        SystemLayer = "database"
	LayerExternalService SystemLayer = "external_service"
	LayerMLPipeline      SystemLayer = "ml_pipeline"
	LayerSecrets         SystemLayer = "secrets"
	LayerService         SystemLayer = "service"
)

// Environment names the deployment environment an incident occurred in.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
	EnvDev        Environment = "development"
)
