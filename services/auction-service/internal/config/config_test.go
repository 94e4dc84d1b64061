package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 25, cfg.Store.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Bidding.AntiSnipeWindow)
	assert.Equal(t, "@every 5m", cfg.Worker.ReconcileCron)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/atelier")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ANTI_SNIPE_WINDOW", "2m")
	t.Setenv("BID_RATE_LIMIT", "0.5")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/atelier", cfg.Database.URL)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Bidding.AntiSnipeWindow)
	assert.InDelta(t, 0.5, cfg.Bidding.RateLimit, 1e-9)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://localhost/atelier"},
			Store:    StoreConfig{Backend: "redis", MaxRetries: 3},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing database url", mutate: func(c *Config) { c.Database.URL = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "etcd" }},
		{name: "negative retries", mutate: func(c *Config) { c.Store.MaxRetries = -1 }},
		{name: "negative window", mutate: func(c *Config) { c.Bidding.AntiSnipeWindow = -time.Second }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
