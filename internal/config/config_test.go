package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MEMORY_PARTICIPANTS", "")

	cfg := Load()

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 64, cfg.PushQueueSize)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Empty(t, cfg.SeedParticipants)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("WS_PUSH_QUEUE", "not-a-number")
	t.Setenv("MEMORY_PARTICIPANTS", "alice:Alice A")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.0001)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 64, cfg.PushQueueSize)
	assert.Equal(t, "alice:Alice A", cfg.SeedParticipants)
}
