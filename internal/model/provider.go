// Package model defines the shared vocabulary for the resilience core:
// providers, tiers, business context, health, and impact classifications.
package model

import "time"

// ServiceType identifies a logical external service a provider implements.
type ServiceType string

const (
	ServiceRouting ServiceType = "routing"
	ServiceTraffic ServiceType = "traffic"
	ServiceMaps    ServiceType = "maps"
	ServiceWeather ServiceType = "weather"
)

// Tier is the priority class of a provider. Lower Rank() is preferred.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierTertiary  Tier = "tertiary"
	TierEmergency Tier = "emergency"
)

// Rank returns the ordinal priority of the tier (primary = 0).
func (t Tier) Rank() int {
	switch t {
	case TierPrimary:
		return 0
	case TierSecondary:
		return 1
	case TierTertiary:
		return 2
	case TierEmergency:
		return 3
	default:
		return 4
	}
}

// HealthStatus is the coarse operational state of a provider.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
)

// ProviderConfig holds per-provider operational settings.
type ProviderConfig struct {
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries       int           `json:"max_retries" yaml:"max_retries"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	RateLimitPerSec  float64       `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	DailyQuota       int64         `json:"daily_quota" yaml:"daily_quota"`
	HealthURL        string        `json:"health_url,omitempty" yaml:"health_url"`
}

// ServiceProvider is one external-dependency candidate for a logical service.
// Live metric fields are mutated continuously by health checks and call
// outcomes; providers are never deleted, only marked offline.
type ServiceProvider struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ServiceType ServiceType `json:"service_type"`
	Tier        Tier        `json:"tier"`

	// Live metrics.
	Reliability    float64 `json:"reliability"`      // [0,1]
	LatencyMs      float64 `json:"latency_ms"`       // rolling average
	CostPerRequest float64 `json:"cost_per_request"` // USD

	// Operational state.
	HealthStatus    HealthStatus `json:"health_status"`
	LastHealthCheck time.Time    `json:"last_health_check"`
	QuotaUsedToday  int64        `json:"quota_used_today"`

	Config ProviderConfig `json:"config"`
}

// HealthMetrics is one health-history sample for a provider.
type HealthMetrics struct {
	Timestamp      time.Time      `json:"timestamp"`
	ResponseTimeMs float64        `json:"response_time_ms"`
	SuccessRate    float64        `json:"success_rate"`
	ErrorRate      float64        `json:"error_rate"`
	Availability   float64        `json:"availability"`
	CostEfficiency float64        `json:"cost_efficiency"`
	QualityScore   float64        `json:"quality_score"`
	BusinessImpact BusinessImpact `json:"business_impact"`
}
