package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "python:3.12-alpine", cfg.Image)
	assert.Equal(t, 10, cfg.MaxConcurrentSessions)
	assert.Equal(t, int64(48*1024*1024), cfg.MemoryLimitBytes)
	assert.Equal(t, 0.20, cfg.CPULimitCores)
	assert.Equal(t, int64(15), cfg.PidsLimit)
	assert.Equal(t, 300*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.DrainGrace)
	assert.Equal(t, 5, cfg.MaxFailedAttempts)
	assert.Equal(t, 600*time.Second, cfg.BruteForceCooldown)
	assert.Equal(t, time.Second, cfg.AuthFailureDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_SESSIONS", "3")
	t.Setenv("EXECUTION_TIMEOUT", "15")
	t.Setenv("MAX_FAILED_ATTEMPTS", "2")
	t.Setenv("BRUTE_FORCE_COOLDOWN", "4")
	t.Setenv("SANDBOX_IMAGE", "python:3.14-alpine")

	cfg := Load()

	assert.Equal(t, 3, cfg.MaxConcurrentSessions)
	assert.Equal(t, 15*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 2, cfg.MaxFailedAttempts)
	assert.Equal(t, 4*time.Second, cfg.BruteForceCooldown)
	assert.Equal(t, "python:3.14-alpine", cfg.Image)
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_SESSIONS", "not-a-number")
	t.Setenv("MEMORY_LIMIT_BYTES", "-1")

	cfg := Load()

	assert.Equal(t, 10, cfg.MaxConcurrentSessions)
	assert.Equal(t, int64(48*1024*1024), cfg.MemoryLimitBytes)
}
