package cascade

import (
	"time"

	"github.com/dispatchlab/failover/internal/model"
)

// AttemptError records one failed provider attempt.
type AttemptError struct {
	Provider  string    `json:"provider"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// FallbackContext is the per-call request envelope. It is created fresh for
// each top-level call and mutated only by appending attempts and errors.
type FallbackContext struct {
	Operation          string                `json:"operation"`
	Request            any                   `json:"request"`
	AttemptedProviders []string              `json:"attempted_providers"`
	Errors             []AttemptError        `json:"errors"`
	Business           model.BusinessContext `json:"business_context"`
	Requirements       model.Requirements    `json:"requirements"`
}

// ResultMetadata summarizes how a result was obtained.
type ResultMetadata struct {
	ProvidersTried  []string             `json:"providers_tried"`
	Strategy        string               `json:"strategy"`
	BusinessImpact  model.BusinessImpact `json:"business_impact,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// FallbackResult is the outcome envelope returned for every cascade
// execution, success or structured failure.
type FallbackResult struct {
	Success          bool                   `json:"success"`
	Data             any                    `json:"data,omitempty"`
	Provider         string                 `json:"provider,omitempty"`
	DegradationLevel model.DegradationLevel `json:"degradation_level"`
	CostImpactPct    float64                `json:"cost_impact_pct"`
	Latency          time.Duration          `json:"latency"`
	CacheUsed        bool                   `json:"cache_used"`
	OfflineMode      bool                   `json:"offline_mode"`
	Metadata         ResultMetadata         `json:"metadata"`
}

// Execution strategies reported in result metadata.
const (
	StrategyLive      = "live_provider"
	StrategyCached    = "cached_response"
	StrategyEstimated = "estimated_response"
	StrategyExhausted = "exhausted"
)
