package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "simulate", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Sim.Interval.Duration)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Risk.MaxPositions = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "max_positions")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestQuoteModeRequiresMarketsAndCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "quote"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one market")
	assert.Contains(t, err.Error(), "api_key is required")

	cfg.Quoter.Markets = []string{"KXBTC-25DEC31"}
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Kalshi.RsaPrivateKeyPath = "/tmp/key.pem"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "simulate"
log_level = "debug"

[sim]
initial_capital = 50000.0
interval = "10s"

[risk]
sizing_method = "kelly"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50000.0, cfg.Sim.InitialCapital)
	assert.Equal(t, 10*time.Second, cfg.Sim.Interval.Duration)
	assert.Equal(t, "kelly", cfg.Risk.SizingMethod)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KALSHIBOT_MODE", "quote")
	t.Setenv("KALSHIBOT_QUOTER_MARKETS", "MKT-A, MKT-B")
	t.Setenv("KALSHIBOT_SIM_INTERVAL", "45s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "quote", cfg.Mode)
	assert.Equal(t, []string{"MKT-A", "MKT-B"}, cfg.Quoter.Markets)
	assert.Equal(t, 45*time.Second, cfg.Sim.Interval.Duration)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Kalshi.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
