package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "providers.yaml", cfg.Catalog.Path)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "failover.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.CriticalThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown())
	assert.Equal(t, 30*time.Second, cfg.Health.ProbeInterval())
	assert.Equal(t, 5*time.Minute, cfg.Health.FleetCheckInterval())
	assert.InDelta(t, 0.5, cfg.Health.UnhealthyRatio, 0.001)
	assert.InDelta(t, 0.9, cfg.Health.MinReliability, 0.001)
	assert.Equal(t, 5*time.Minute, cfg.Predict.Interval())
	assert.Equal(t, 15*time.Minute, cfg.Predict.Window())
	assert.Equal(t, 3, cfg.Predict.MinSamples)
	assert.InDelta(t, 0.1, cfg.Predict.DropThreshold, 0.001)
	assert.InDelta(t, 0.7, cfg.Predict.ForceOpenConfidence, 0.001)
	assert.Equal(t, 24*time.Hour, cfg.Cache.SuccessTTL())
	assert.Equal(t, time.Hour, cfg.Cache.EstimateTTL())
	assert.Equal(t, 60, cfg.Recovery.DeadlineMins["minimal"])
	assert.Equal(t, 1, cfg.Recovery.DeadlineMins["revenue_blocking"])
	assert.Equal(t, 1000, cfg.Plans.MaxRetained)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Contains(t, cfg.Pricing.Providers, "osrm")
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/failover
breaker:
  failure_threshold: 3
  cooldown_secs: 60
log:
  level: debug
  format: console
server:
  port: 9090
pricing:
  providers:
    osrm:
      plan_monthly: 99
      requests_included: 500000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/failover", cfg.Store.DatabaseURL)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.Cooldown())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 99.0, cfg.Pricing.Providers["osrm"].PlanMonthly, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Predict.MinSamples)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FAILOVER_STORE_DRIVER", "memory")
	t.Setenv("FAILOVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("FAILOVER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "failover.db"
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.CriticalThreshold = 2
	cfg.Predict.DropThreshold = 0.1
	cfg.Health.UnhealthyRatio = 0.5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "cassandra"

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite, postgres, or memory")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/failover"
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateBreakerThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Breaker.CriticalThreshold = 7

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "breaker.critical_threshold")

	cfg.Breaker.CriticalThreshold = 2
	cfg.Breaker.FailureThreshold = 0
	err = cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "breaker.failure_threshold")
}

func TestValidatePredictThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Predict.DropThreshold = 1.5

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "predict.drop_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
