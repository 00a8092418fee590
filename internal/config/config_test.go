package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Lookahead)
	assert.Equal(t, 4, cfg.Scheduler.Parallelism)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RetryInterval)
	assert.Equal(t, 6, cfg.Advisory.MaxDelayHours)
	assert.Equal(t, 15.0, cfg.Advisory.MinImprovementPct)
	assert.Equal(t, 3*time.Hour, cfg.Advisory.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.Forecast.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Push.Timeout)
	assert.Equal(t, 40.0, cfg.Risk.HighWind)
	assert.Equal(t, 3, cfg.Risk.SevereSaturation)
	assert.Equal(t, "routecast-advisor", cfg.Logging.Service)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
scheduler:
  interval: 10m
advisory:
  min_improvement_pct: 20
risk:
  high_wind: 55
push:
  telegram:
    enabled: true
    bot_token: abc
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("ROUTECAST_SCHEDULER_PARALLELISM", "8")
	t.Setenv("ROUTECAST_ENTITLEMENT_STATIC_USERS", "alice,bob")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 8, cfg.Scheduler.Parallelism)
	assert.Equal(t, 20.0, cfg.Advisory.MinImprovementPct)
	assert.Equal(t, 55.0, cfg.Risk.HighWind)
	assert.True(t, cfg.Push.Telegram.Enabled)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Entitlement.Static)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }},
		{name: "zero parallelism", mutate: func(c *Config) { c.Scheduler.Parallelism = 0 }},
		{name: "improvement above 100", mutate: func(c *Config) { c.Advisory.MinImprovementPct = 101 }},
		{name: "telegram without token", mutate: func(c *Config) { c.Push.Telegram.Enabled = true }},
		{name: "stripe without key", mutate: func(c *Config) { c.Entitlement.Provider = "stripe" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Entitlement.Provider = "paypal" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 50}}
	assert.Equal(t, 50, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
