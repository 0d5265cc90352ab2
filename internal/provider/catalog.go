package provider

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dispatchlab/failover/internal/model"
)

// catalogEntry is the YAML shape of one seeded provider.
type catalogEntry struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	ServiceType    string  `yaml:"service_type"`
	Tier           string  `yaml:"tier"`
	Reliability    float64 `yaml:"reliability"`
	LatencyMs      float64 `yaml:"latency_ms"`
	CostPerRequest float64 `yaml:"cost_per_request"`

	TimeoutMs        int     `yaml:"timeout_ms"`
	MaxRetries       int     `yaml:"max_retries"`
	FailureThreshold int     `yaml:"failure_threshold"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec"`
	DailyQuota       int64   `yaml:"daily_quota"`
	HealthURL        string  `yaml:"health_url"`
}

// DefaultCatalog returns the built-in provider seed used when no catalog
// file is configured.
func DefaultCatalog() []model.ServiceProvider {
	mk := func(id, name string, st model.ServiceType, tier model.Tier, rel, lat, costPer float64, timeout time.Duration) model.ServiceProvider {
		return model.ServiceProvider{
			ID:             id,
			Name:           name,
			ServiceType:    st,
			Tier:           tier,
			Reliability:    rel,
			LatencyMs:      lat,
			CostPerRequest: costPer,
			HealthStatus:   model.HealthHealthy,
			Config:         model.ProviderConfig{Timeout: timeout, FailureThreshold: 5},
		}
	}
	return []model.ServiceProvider{
		mk("osrm", "OSRM", model.ServiceRouting, model.TierPrimary, 0.99, 120, 0.0001, 3*time.Second),
		mk("valhalla", "Valhalla", model.ServiceRouting, model.TierSecondary, 0.97, 200, 0.0002, 4*time.Second),
		mk("graphhopper", "GraphHopper", model.ServiceRouting, model.TierSecondary, 0.98, 180, 0.0005, 4*time.Second),
		mk("google-maps", "Google Maps Routing", model.ServiceRouting, model.TierEmergency, 0.999, 150, 0.005, 5*time.Second),
		mk("here-traffic", "HERE Traffic", model.ServiceTraffic, model.TierPrimary, 0.98, 250, 0.001, 5*time.Second),
		mk("tomtom", "TomTom Traffic", model.ServiceTraffic, model.TierSecondary, 0.97, 300, 0.0015, 5*time.Second),
		mk("mapbox", "Mapbox Maps", model.ServiceMaps, model.TierPrimary, 0.99, 100, 0.002, 3*time.Second),
		mk("openweather", "OpenWeatherMap", model.ServiceWeather, model.TierPrimary, 0.98, 350, 0.0001, 5*time.Second),
		mk("weatherapi", "WeatherAPI", model.ServiceWeather, model.TierSecondary, 0.96, 400, 0.0002, 5*time.Second),
	}
}

// LoadCatalog reads the provider seed catalog from a YAML file.
func LoadCatalog(path string) ([]model.ServiceProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read catalog %s", path)
	}

	var wrapper struct {
		Providers []catalogEntry `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "provider: parse catalog")
	}

	out := make([]model.ServiceProvider, 0, len(wrapper.Providers))
	for _, e := range wrapper.Providers {
		if e.ID == "" {
			return nil, eris.New("provider: catalog entry missing id")
		}
		p := model.ServiceProvider{
			ID:             e.ID,
			Name:           e.Name,
			ServiceType:    model.ServiceType(e.ServiceType),
			Tier:           model.Tier(e.Tier),
			Reliability:    e.Reliability,
			LatencyMs:      e.LatencyMs,
			CostPerRequest: e.CostPerRequest,
			HealthStatus:   model.HealthHealthy,
			Config: model.ProviderConfig{
				Timeout:          time.Duration(e.TimeoutMs) * time.Millisecond,
				MaxRetries:       e.MaxRetries,
				FailureThreshold: e.FailureThreshold,
				RateLimitPerSec:  e.RateLimitPerSec,
				DailyQuota:       e.DailyQuota,
				HealthURL:        e.HealthURL,
			},
		}
		if p.Config.Timeout <= 0 {
			p.Config.Timeout = 5 * time.Second
		}
		if p.Tier == "" {
			p.Tier = model.TierSecondary
		}
		if p.Reliability <= 0 {
			p.Reliability = 0.95
		}
		out = append(out, p)
	}
	return out, nil
}
