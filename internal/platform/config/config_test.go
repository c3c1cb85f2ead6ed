package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE", "")
	t.Setenv("HOLD_CONVERT_GRACE", "")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 10*time.Second, cfg.Holds.ConvertGrace)
	assert.Equal(t, "tail", cfg.Queue.RequeuePolicy)
	assert.GreaterOrEqual(t, cfg.Retry.Attempts, 1)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE", "Postgres")
	t.Setenv("HOLD_CONVERT_GRACE", "7s")
	t.Setenv("RETRY_ATTEMPTS", "0")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 7*time.Second, cfg.Holds.ConvertGrace)
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.TTL)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG", "on")
	assert.True(t, envBool("FLAG", false))
	t.Setenv("FLAG", "off")
	assert.False(t, envBool("FLAG", true))
	t.Setenv("FLAG", "maybe")
	assert.True(t, envBool("FLAG", true))
}
