package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "PG_DSN", "LOG_LEVEL", "LOG_FORMAT", "DISCOUNT_RATE", "LATE_CHARGE_RATE",
		"RATE_CLASS_CATALOG", "RENEWABLE_ENERGY_FILE", "COMPUTE_WORKERS", "METRICS_FILE", "REEBILL_CONFIG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultDiscountRate, cfg.DiscountRate)
	assert.Equal(t, DefaultLateChargeRate, cfg.LateChargeRate)
	assert.Equal(t, DefaultComputeWorkers, cfg.ComputeWorkers)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_DSN", "postgres://pg")
	t.Setenv("DISCOUNT_RATE", "0.35")
	t.Setenv("COMPUTE_WORKERS", "8")
	t.Setenv("LATE_CHARGE_RATE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://pg", cfg.DatabaseURL)
	assert.Equal(t, 0.35, cfg.DiscountRate)
	assert.Equal(t, 8, cfg.ComputeWorkers)
	assert.Equal(t, DefaultLateChargeRate, cfg.LateChargeRate)

	t.Setenv("DATABASE_URL", "postgres://primary")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DatabaseURL)
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCOUNT_RATE", "0.1")
	path := filepath.Join(t.TempDir(), "reebill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discount_rate: 0.4
log_format: json
rate_class_catalog: /etc/reebill/rate_classes.yaml
`), 0o600))
	t.Setenv("REEBILL_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.DiscountRate)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/etc/reebill/rate_classes.yaml", cfg.RateClassCatalog)
	assert.Equal(t, DefaultComputeWorkers, cfg.ComputeWorkers)
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discount_rate: [1"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{LogFormat: "console", ComputeWorkers: 1, DiscountRate: 0.5}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "discount above one", mutate: func(c *Config) { c.DiscountRate = 1.1 }, wantErr: true},
		{name: "negative late charge", mutate: func(c *Config) { c.LateChargeRate = -0.1 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.ComputeWorkers = 0 }, wantErr: true},
		{name: "unknown format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "json format", mutate: func(c *Config) { c.LogFormat = "JSON" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Str("account", "10003").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"account":"10003"`)

	assert.Equal(t, zerolog.InfoLevel, NewLogger("bogus", "console", &buf).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("", "console", &buf).GetLevel())
}
