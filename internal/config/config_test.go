package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CHAINHOOK_SECRET", "CHAINHOOK_ALLOW_UNSIGNED", "EVENT_STORE",
		"EVENT_RETENTION", "DATABASE_URL", "LOG_LEVEL", "RETRY_ENABLED",
		"MAX_BODY_BYTES", "DEFAULT_QUERY_LIMIT", "RETRY_INITIAL_DELAY_SEC",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.EventStore)
	assert.Equal(t, 10000, cfg.EventRetention)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 50, cfg.DefaultQueryLimit)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.False(t, cfg.AllowUnsigned)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", ":8080")
	t.Setenv("CHAINHOOK_SECRET", "s3cret")
	t.Setenv("EVENT_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/relay")
	t.Setenv("EVENT_RETENTION", "not-a-number")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "s3cret", cfg.ChainhookSecret)
	assert.Equal(t, StorePostgres, cfg.EventStore)
	assert.Equal(t, 10000, cfg.EventRetention, "unparsable values fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              3001,
			ChainhookSecret:   "s3cret",
			EventStore:        StoreMemory,
			EventRetention:    100,
			MaxBodyBytes:      1024,
			DefaultQueryLimit: 50,
			MaxQueryLimit:     100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unsigned needs opt-in", func(c *Config) { c.ChainhookSecret = "" }, "CHAINHOOK_SECRET"},
		{"unsigned with opt-in", func(c *Config) { c.ChainhookSecret = ""; c.AllowUnsigned = true }, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"postgres without url", func(c *Config) { c.EventStore = StorePostgres }, "DATABASE_URL"},
		{"unknown store", func(c *Config) { c.EventStore = "redis" }, "EVENT_STORE"},
		{"negative retention", func(c *Config) { c.EventRetention = -1 }, "EVENT_RETENTION"},
		{"limits inverted", func(c *Config) { c.MaxQueryLimit = 10 }, "query limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
