package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reconcile.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "plan.yaml", cfg.Pipeline.PlanPath)
	assert.Equal(t, "artifacts", cfg.Pipeline.ArtifactDir)
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 1000, cfg.Pipeline.RetryBaseDelayMs)
	assert.InDelta(t, 2.0, cfg.Pipeline.RetryMultiplier, 0.001)
	assert.Equal(t, 8, cfg.Pipeline.ConcurrencyLimit)
	assert.Equal(t, 30, cfg.Fetcher.HTTPTimeoutSecs)
	assert.Equal(t, "indicators", cfg.Indicators.Table)
	assert.Equal(t, 60, cfg.Monitoring.HealthIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Empty(t, cfg.Sources)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reconcile
log:
  level: debug
  format: console
pipeline:
  concurrency_limit: 4
sources:
  - name: exchange
    kind: httpjson
    base_url: https://md.example.com/v1
    fields: [price, volume]
    min_interval_ms: 250
    breaker:
      failure_threshold: 3
      reset_timeout_secs: 30
  - name: history
    kind: tabular
    location: ftp://files.example.com/history.csv
    fields: [price]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Pipeline.ConcurrencyLimit)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)

	require.Len(t, cfg.Sources, 2)
	ex, ok := cfg.Source("exchange")
	require.True(t, ok)
	assert.Equal(t, "httpjson", ex.Kind)
	assert.Equal(t, []string{"price", "volume"}, ex.Fields)
	assert.Equal(t, 250, ex.MinIntervalMs)
	assert.Equal(t, 3, ex.Breaker.FailureThreshold)
	_, ok = cfg.Source("missing")
	assert.False(t, ok)

	require.NoError(t, cfg.Validate("run"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RECONCILE_STORE_DRIVER", "postgres")
	t.Setenv("RECONCILE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RECONCILE_SERVER_PORT", "3000")
	t.Setenv("RECONCILE_PIPELINE_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 0, cfg.Pipeline.MaxRetries)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RECONCILE_TEST_ENV_FILE=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("RECONCILE_TEST_ENV_FILE") })

	LoadEnvFiles()
	assert.Equal(t, "from-dotenv", os.Getenv("RECONCILE_TEST_ENV_FILE"))
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
	cfg.Pipeline.PlanPath = "plan.yaml"
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.RetryMultiplier = 2
	cfg.Pipeline.ConcurrencyLimit = 8
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Run(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidate_SourceKinds(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources = []SourceConfig{
		{Name: "a", Kind: "httpjson", Fields: []string{"price"}},
		{Name: "b", Kind: "tabular", Fields: []string{"price"}},
		{Name: "c", Kind: "postgres", Fields: []string{"cpi"}},
		{Name: "a", Kind: "static", Fields: []string{"price"}},
		{Name: "d", Kind: "carrier-pigeon", Fields: []string{"price"}},
	}

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.a: base_url is required")
	assert.Contains(t, err.Error(), "sources.b: location is required")
	assert.Contains(t, err.Error(), "sources.c: database_url is required")
	assert.Contains(t, err.Error(), `duplicate name "a"`)
	assert.Contains(t, err.Error(), "Kind")
}

func TestValidate_PostgresStoreNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateIndicators_NeedsDatabase(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("indicators")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "indicators.database_url is required")

	cfg.Indicators.DatabaseURL = "postgres://localhost/indicators"
	assert.NoError(t, cfg.Validate("indicators"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.ConcurrencyLimit = 0
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ConcurrencyLimit")

	cfg.Pipeline.ConcurrencyLimit = 65
	assert.Error(t, cfg.Validate("run"))

	cfg.Pipeline.ConcurrencyLimit = 64
	assert.NoError(t, cfg.Validate("run"))
}
