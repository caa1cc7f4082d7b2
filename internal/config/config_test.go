package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, time.UTC, cfg.Store.Location())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	body := `
store:
  kind: networked
  dialect: mysql
  host: db.local
  database: survival
  username: mc
  password: hunter2
  pool_size: 4
  connect_timeout: 2s
  timezone: local
xp_multiplier: 1.5
rewards:
  cooldown: 12h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("SMPTWEAKS_STORE_POOL_SIZE", "7")
	t.Setenv("SMPTWEAKS_CACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("SMPTWEAKS_OTEL_ENDPOINT", "collector:4318")
	t.Setenv("SMPTWEAKS_OTEL_SAMPLE_RATIO", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "networked", cfg.Store.Kind)
	assert.Equal(t, "mysql", cfg.Store.Dialect)
	assert.Equal(t, "db.local", cfg.Store.Host)
	assert.Equal(t, 7, cfg.Store.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Store.ConnectTimeout)
	assert.Equal(t, time.Local, cfg.Store.Location())
	assert.Equal(t, 1.5, cfg.XPMultiplier)
	assert.Equal(t, 12*time.Hour, cfg.Rewards.Cooldown)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "collector:4318", cfg.Otel.Endpoint)
	assert.Equal(t, 1.0, cfg.Otel.SampleRatio)
	assert.Equal(t, "smptweaks_player", cfg.Store.TableName, "unset keys keep defaults")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		// Missing connection settings degrade the manager at startup.
		{name: "networked without host", mutate: func(c *Config) {
			c.Store.Kind = "networked"
			c.Store.Database = "mc"
			c.Store.Username = "mc"
		}, ok: true},
		{name: "networked without username", mutate: func(c *Config) {
			c.Store.Kind = "networked"
			c.Store.Host = "db"
			c.Store.Database = "mc"
		}, ok: true},
		{name: "networked complete", mutate: func(c *Config) {
			c.Store.Kind = "networked"
			c.Store.Host = "db"
			c.Store.Database = "mc"
			c.Store.Username = "mc"
		}, ok: true},
		{name: "unknown kind", mutate: func(c *Config) { c.Store.Kind = "s3" }},
		{name: "unknown dialect", mutate: func(c *Config) { c.Store.Dialect = "oracle" }},
		{name: "zero pool", mutate: func(c *Config) { c.Store.PoolSize = 0 }},
		{name: "negative multiplier", mutate: func(c *Config) { c.XPMultiplier = -1 }},
		{name: "zero base xp", mutate: func(c *Config) { c.ServerLevels.BaseXP = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.Store.Timezone = "mars" }},
		{name: "no workers", mutate: func(c *Config) { c.Workers.Concurrency = 0 }},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Otel.SampleRatio = 1.5 }},
		{name: "negative sample ratio", mutate: func(c *Config) { c.Otel.SampleRatio = -0.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins", "smptweaks", DefaultFileName)

	written, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, written, "existing file is left alone")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}
