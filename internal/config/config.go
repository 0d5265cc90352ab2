package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dispatchlab/failover/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Health   HealthConfig   `yaml:"health" mapstructure:"health"`
	Predict  PredictConfig  `yaml:"predict" mapstructure:"predict"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Recovery RecoveryConfig `yaml:"recovery" mapstructure:"recovery"`
	Alerts   AlertsConfig   `yaml:"alerts" mapstructure:"alerts"`
	Pricing  cost.Rates     `yaml:"pricing" mapstructure:"pricing"`
	Plans    PlansConfig    `yaml:"plans" mapstructure:"plans"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CatalogConfig points at the provider seed catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the offline-cache backend.
type StoreConfig struct {
	// Driver is sqlite, postgres, or memory.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BreakerConfig configures the circuit-breaker table.
type BreakerConfig struct {
	FailureThreshold  int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CriticalThreshold int `yaml:"critical_threshold" mapstructure:"critical_threshold"`
	CooldownSecs      int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// HealthConfig configures health probing and fleet evaluation.
type HealthConfig struct {
	ProbeIntervalSecs      int     `yaml:"probe_interval_secs" mapstructure:"probe_interval_secs"`
	FleetCheckIntervalSecs int     `yaml:"fleet_check_interval_secs" mapstructure:"fleet_check_interval_secs"`
	UnhealthyRatio         float64 `yaml:"unhealthy_ratio" mapstructure:"unhealthy_ratio"`
	MinReliability         float64 `yaml:"min_reliability" mapstructure:"min_reliability"`
}

// PredictConfig configures the predictive degradation monitor.
type PredictConfig struct {
	IntervalSecs        int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	WindowMins          int     `yaml:"window_mins" mapstructure:"window_mins"`
	MinSamples          int     `yaml:"min_samples" mapstructure:"min_samples"`
	DropThreshold       float64 `yaml:"drop_threshold" mapstructure:"drop_threshold"`
	ForceOpenConfidence float64 `yaml:"force_open_confidence" mapstructure:"force_open_confidence"`
}

// CacheConfig configures offline-cache TTLs.
type CacheConfig struct {
	SuccessTTLHours int `yaml:"success_ttl_hours" mapstructure:"success_ttl_hours"`
	EstimateTTLMins int `yaml:"estimate_ttl_mins" mapstructure:"estimate_ttl_mins"`
}

// RecoveryConfig configures the recovery orchestrator. DeadlineMins is keyed
// by business-impact level (minimal, moderate, significant, critical,
// revenue_blocking); entries must tighten as severity increases.
type RecoveryConfig struct {
	DeadlineMins map[string]int `yaml:"deadline_mins" mapstructure:"deadline_mins"`
}

// AlertsConfig configures webhook alert delivery.
type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// PlansConfig configures execution-plan retention.
type PlansConfig struct {
	MaxRetained int `yaml:"max_retained" mapstructure:"max_retained"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BreakerCooldown returns the configured cooldown as a duration.
func (b BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownSecs) * time.Second
}

// ProbeInterval returns the health-probe interval as a duration.
func (h HealthConfig) ProbeInterval() time.Duration {
	return time.Duration(h.ProbeIntervalSecs) * time.Second
}

// FleetCheckInterval returns the fleet evaluation interval as a duration.
func (h HealthConfig) FleetCheckInterval() time.Duration {
	return time.Duration(h.FleetCheckIntervalSecs) * time.Second
}

// Interval returns the predictive-monitor interval as a duration.
func (p PredictConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSecs) * time.Second
}

// Window returns the predictive-monitor history window as a duration.
func (p PredictConfig) Window() time.Duration {
	return time.Duration(p.WindowMins) * time.Minute
}

// SuccessTTL returns the TTL for cached live responses.
func (c CacheConfig) SuccessTTL() time.Duration {
	return time.Duration(c.SuccessTTLHours) * time.Hour
}

// EstimateTTL returns the TTL for cached synthesized estimates.
func (c CacheConfig) EstimateTTL() time.Duration {
	return time.Duration(c.EstimateTTLMins) * time.Minute
}

// Validate checks that the configuration is usable for the given run mode.
// Errors accumulate so the operator sees every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "memory":
		default:
			problems = append(problems, "store.driver must be sqlite, postgres, or memory")
		}

		if c.Breaker.FailureThreshold < 1 {
			problems = append(problems, "breaker.failure_threshold must be >= 1")
		}
		if c.Breaker.CriticalThreshold < 1 || c.Breaker.CriticalThreshold > c.Breaker.FailureThreshold {
			problems = append(problems, "breaker.critical_threshold must be between 1 and breaker.failure_threshold")
		}
		if c.Predict.DropThreshold <= 0 || c.Predict.DropThreshold > 1 {
			problems = append(problems, "predict.drop_threshold must be in (0, 1]")
		}
		if c.Health.UnhealthyRatio <= 0 || c.Health.UnhealthyRatio > 1 {
			problems = append(problems, "health.unhealthy_ratio must be in (0, 1]")
		}
	}

	switch mode {
	case "serve":
		check()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "cli":
		check()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FAILOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.path", "providers.yaml")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "failover.db")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.critical_threshold", 2)
	v.SetDefault("breaker.cooldown_secs", 30)
	v.SetDefault("health.probe_interval_secs", 30)
	v.SetDefault("health.fleet_check_interval_secs", 300)
	v.SetDefault("health.unhealthy_ratio", 0.5)
	v.SetDefault("health.min_reliability", 0.9)
	v.SetDefault("predict.interval_secs", 300)
	v.SetDefault("predict.window_mins", 15)
	v.SetDefault("predict.min_samples", 3)
	v.SetDefault("predict.drop_threshold", 0.1)
	v.SetDefault("predict.force_open_confidence", 0.7)
	v.SetDefault("cache.success_ttl_hours", 24)
	v.SetDefault("cache.estimate_ttl_mins", 60)
	v.SetDefault("recovery.deadline_mins", map[string]int{
		"minimal":          60,
		"moderate":         30,
		"significant":      15,
		"critical":         5,
		"revenue_blocking": 1,
	})
	v.SetDefault("plans.max_retained", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Pricing.Providers) == 0 {
		cfg.Pricing = cost.DefaultRates()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
