package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Socket.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, cfg.Socket.TypingTimeout)
	assert.Equal(t, time.Second, cfg.Socket.TypingSweep)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 10, cfg.Queue.LimiterMax)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SOCKET_HEARTBEAT_INTERVAL", "5000")
	t.Setenv("SOCKET_TYPING_TIMEOUT", "2s")
	t.Setenv("RUN_WORKERS", "true")

	cfg := Load()

	assert.Equal(t, "redis:6380", cfg.Redis.Addr())
	assert.Equal(t, 5*time.Second, cfg.Socket.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Socket.TypingTimeout)
	assert.True(t, cfg.Server.RunWorkers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"production with default secret", func(c *Config) { c.Server.Env = "production" }, true},
		{"production with secret", func(c *Config) {
			c.Server.Env = "production"
			c.JWT.AccessSecret = "s3cret"
		}, false},
		{"zero heartbeat", func(c *Config) { c.Socket.HeartbeatInterval = 0 }, true},
		{"negative lock", func(c *Config) { c.Queue.LockDuration = -time.Second }, true},
		{"bad reminder hour", func(c *Config) { c.Queue.ReminderHour = 24 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
