package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/core"
)

// isolate points every lookup at empty temp directories.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("VOLSCAN_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("FRED_API_KEY", "")
	SetConfigFile("")
	return dir
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, filepath.Join(gfconfig.GetAppDataDir("volscan"), "volscan.db"), cfg.Store.Path)

		// Verify client defaults
		assert.Equal(t, 25*time.Second, cfg.Client.AcquireTimeout)
		assert.Equal(t, 9500*time.Millisecond, cfg.Client.RequestTimeout)
		assert.Equal(t, 150*time.Millisecond, cfg.Client.ReconnectDelay)
		assert.Equal(t, 3, cfg.Client.MaxReconnectTries)
		assert.Equal(t, 5, cfg.Client.MaxRedirects)
		assert.Equal(t, 5, cfg.Client.MaxRateLimitRetries)
		assert.Equal(t, "Bearer", cfg.Client.AuthScheme)
		assert.Equal(t, 7*24*time.Hour, cfg.Client.JournalRetention)

		// Verify domain defaults
		assert.Equal(t, "SOFR", cfg.FRED.Series)
		assert.Equal(t, time.Minute, cfg.Watch.Interval)
		assert.Equal(t, 2.0, cfg.Watch.Rate)
		assert.True(t, cfg.Watch.MarketHoursOnly)

		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"client": map[string]any{
				"base_url": "https://api.example.com/",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("VOLSCAN_PORT", "3000")
		t.Setenv("VOLSCAN_LOG_LEVEL", "warn")
		t.Setenv("VOLSCAN_METRICS_ENABLED", "false")
		t.Setenv("VOLSCAN_CLIENT_MAX_REDIRECTS", "2")
		t.Setenv("FRED_API_KEY", "fred-key")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 2, cfg.Client.MaxRedirects)
		assert.Equal(t, "fred-key", cfg.FRED.APIKey)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("VOLSCAN_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestLoadConfigFileAndEnvFile(t *testing.T) {
	dir := isolate(t)

	configPath := filepath.Join(dir, "volscan.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
client:
  base_url: https://api.tradier.example
  request_timeout: 4s
workloads:
  quotes:
    method: get
    path: /v1/markets/quotes?symbols=SPY
    special: true
    spacing: 2s
    headers:
      Accept: application/json
`), 0o600))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("VOLSCAN_API_TOKEN=from-dotenv\n"), 0o600))
	t.Setenv("VOLSCAN_ENV_FILE", envPath)
	t.Cleanup(func() { _ = os.Unsetenv("VOLSCAN_API_TOKEN") })

	SetConfigFile(configPath)
	t.Cleanup(func() { SetConfigFile("") })

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.tradier.example", cfg.Client.BaseURL)
	assert.Equal(t, 4*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, "from-dotenv", cfg.Client.Token)

	w, err := cfg.Workload("quotes")
	require.NoError(t, err)
	assert.Equal(t, core.WorkloadType("quotes"), w.Type)
	assert.Equal(t, core.MethodGet, w.Method)
	assert.Equal(t, "/v1/markets/quotes?symbols=SPY", w.Path)
	accept, ok := w.Header("accept")
	assert.True(t, ok)
	assert.Equal(t, "application/json", accept)
	assert.True(t, cfg.Workloads["quotes"].Special)
	assert.Equal(t, 2*time.Second, cfg.Workloads["quotes"].Spacing)

	_, err = cfg.Workload("missing")
	assert.Error(t, err)
}

func TestLoadMissingExplicitConfigFails(t *testing.T) {
	dir := isolate(t)
	SetConfigFile(filepath.Join(dir, "nope.yaml"))
	t.Cleanup(func() { SetConfigFile("") })

	_, err := Load(context.Background())
	require.Error(t, err)
}

func TestGetConfigReturnsLoadedConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"workers": 7})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, 7, retrieved.Workers)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	names := make(map[string]bool)
	for _, spec := range getEnvSpecs() {
		names[spec.Name] = true
	}

	assert.True(t, names["VOLSCAN_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, names["VOLSCAN_PORT"], "PORT env var must be mapped")
	assert.True(t, names["VOLSCAN_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, names["VOLSCAN_API_TOKEN"], "API_TOKEN env var must be mapped")
	assert.True(t, names["FRED_API_KEY"], "FRED_API_KEY env var must be mapped")
}

func TestWorkloadBuildRejectsBadMethod(t *testing.T) {
	_, err := WorkloadConfig{Method: "TRACE"}.Build("x")
	require.Error(t, err)

	w, err := WorkloadConfig{Type: "orders", Payload: "json"}.Build("place")
	require.NoError(t, err)
	require.Equal(t, core.WorkloadType("orders"), w.Type)
	require.Equal(t, core.PayloadJSON, w.Payload)
	require.Equal(t, "place", w.Label)
}
