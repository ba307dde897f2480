// Package config loads service configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the service reads at startup. Values are fixed
// for the lifetime of the process; sandbox limits are applied at container
// creation time and are not adjustable afterwards.
type Config struct {
	Port        string
	DockerHost  string
	Image       string
	WorkDir     string
	ProgramName string

	// Admission
	MaxConcurrentSessions int

	// Per-sandbox resource caps
	MemoryLimitBytes int64
	CPULimitCores    float64
	PidsLimit        int64
	ScratchSize      string

	// Session timing
	ExecutionTimeout time.Duration
	PollInterval     time.Duration
	DrainGrace       time.Duration

	// Abuse guard
	MaxFailedAttempts  int
	BruteForceCooldown time.Duration
	AuthFailureDelay   time.Duration

	// Credential store
	StudentsFile string
	AdminFile    string

	// Host-side scratch
	WorkspaceRoot string
}

// Load reads the configuration from environment variables, applying
// production defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		DockerHost:  envOr("DOCKER_HOST", "unix:///var/run/docker.sock"),
		Image:       envOr("SANDBOX_IMAGE", "python:3.12-alpine"),
		WorkDir:     "/sandbox",
		ProgramName: "script.py",

		MaxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 10),

		MemoryLimitBytes: envInt64("MEMORY_LIMIT_BYTES", 48*1024*1024),
		CPULimitCores:    envFloat("CPU_LIMIT_CORES", 0.20),
		PidsLimit:        envInt64("PIDS_LIMIT", 15),
		ScratchSize:      envOr("SCRATCH_SIZE", "10m"),

		ExecutionTimeout: envSeconds("EXECUTION_TIMEOUT", 300),
		PollInterval:     envMillis("POLL_INTERVAL_MS", 200),
		DrainGrace:       envSeconds("DRAIN_GRACE", 2),

		MaxFailedAttempts:  envInt("MAX_FAILED_ATTEMPTS", 5),
		BruteForceCooldown: envSeconds("BRUTE_FORCE_COOLDOWN", 600),
		AuthFailureDelay:   envSeconds("AUTH_FAILURE_DELAY", 1),

		StudentsFile: envOr("STUDENTS_FILE", "students.txt"),
		AdminFile:    envOr("ADMIN_FILE", "admin.txt"),

		WorkspaceRoot: envOr("WORKSPACE_ROOT", filepath.Join(os.TempDir(), "codecell")),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
