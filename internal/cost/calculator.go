package cost

import "github.com/dispatchlab/failover/internal/model"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Providers map[string]ProviderRate `yaml:"providers" mapstructure:"providers"`
}

// ProviderRate holds one provider's pricing. Providers are either metered
// per request or carried on a monthly plan with included volume; overage
// beyond the included volume is billed per request at the overage multiple.
type ProviderRate struct {
	PerRequest       float64 `yaml:"per_request" mapstructure:"per_request"`
	PlanMonthly      float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	RequestsIncluded float64 `yaml:"requests_included" mapstructure:"requests_included"`
	OverageMul       float64 `yaml:"overage_mul" mapstructure:"overage_mul"`
}

// Calculator computes request costs and spend projections for providers.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Request returns the effective cost of one request to a provider. For plan
// pricing this is the plan amortized over its included volume; unknown
// providers cost nothing.
func (c *Calculator) Request(providerID string) float64 {
	rate, ok := c.rates.Providers[providerID]
	if !ok {
		return 0
	}
	if rate.PlanMonthly > 0 && rate.RequestsIncluded > 0 {
		return rate.PlanMonthly / rate.RequestsIncluded
	}
	return rate.PerRequest
}

// MonthlyProjection estimates one provider's monthly spend at the given
// requests-per-day volume, including plan overage.
func (c *Calculator) MonthlyProjection(providerID string, requestsPerDay float64) float64 {
	rate, ok := c.rates.Providers[providerID]
	if !ok {
		return 0
	}

	monthly := requestsPerDay * 30
	if rate.PlanMonthly <= 0 {
		return monthly * rate.PerRequest
	}

	total := rate.PlanMonthly
	if overage := monthly - rate.RequestsIncluded; overage > 0 {
		mul := rate.OverageMul
		if mul <= 0 {
			mul = 1
		}
		total += overage * rate.PerRequest * mul
	}
	return total
}

// CascadeExposure returns the worst-case per-request cost across a cascade's
// candidate providers: the cost paid if every candidate is attempted once.
// Providers without a configured rate fall back to their catalog cost.
func (c *Calculator) CascadeExposure(providers []model.ServiceProvider) float64 {
	sum := 0.0
	for _, p := range providers {
		if rate := c.Request(p.ID); rate > 0 {
			sum += rate
		} else {
			sum += p.CostPerRequest
		}
	}
	return sum
}

// DefaultRates returns the default pricing rates for the seed catalog.
func DefaultRates() Rates {
	return Rates{
		Providers: map[string]ProviderRate{
			// Self-hosted: infrastructure amortized over typical volume.
			"osrm":     {PlanMonthly: 120.00, RequestsIncluded: 1_000_000},
			"valhalla": {PlanMonthly: 180.00, RequestsIncluded: 1_000_000},

			"graphhopper":  {PerRequest: 0.0005},
			"google-maps":  {PerRequest: 0.005},
			"mapbox":       {PerRequest: 0.002},
			"here-traffic": {PlanMonthly: 250.00, RequestsIncluded: 250_000, PerRequest: 0.001, OverageMul: 1.2},
			"tomtom":       {PerRequest: 0.0015},
			"openweather":  {PlanMonthly: 40.00, RequestsIncluded: 1_000_000, PerRequest: 0.0001, OverageMul: 1},
			"weatherapi":   {PerRequest: 0.0002},
		},
	}
}
