// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"runtime"
	"time"

	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/rubric"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// StoreDriver selects the backing store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the data source name for SQL drivers.
	StoreDSN string `koanf:"store_dsn"`

	// StoreConflictRetries bounds storage-level re-runs on write conflict.
	StoreConflictRetries int `koanf:"store_conflict_retries"`

	// Entry lock policy.
	LockTTLMS         int `koanf:"lock_ttl_ms"`
	LockMaxRetries    int `koanf:"lock_max_retries"`
	LockBaseBackoffMS int `koanf:"lock_base_backoff_ms"`
	LockMaxJitterMS   int `koanf:"lock_max_jitter_ms"`

	// DefaultRubric applies to contests without their own attributes.
	DefaultRubric []rubric.AttributeConfig `koanf:"default_rubric"`

	// Simulator sizing.
	SimJudges    int `koanf:"sim_judges"`
	SimEntries   int `koanf:"sim_entries"`
	SimRounds    int `koanf:"sim_rounds"`
	SimWorkers   int `koanf:"sim_workers"`
	SimQueueSize int `koanf:"sim_queue_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		StoreDriver:          "memory",
		StoreConflictRetries: 10,
		LockTTLMS:            int(lock.DefaultTTL / time.Millisecond),
		LockMaxRetries:       lock.DefaultMaxRetries,
		LockBaseBackoffMS:    int(lock.DefaultBaseDelay / time.Millisecond),
		LockMaxJitterMS:      int(lock.DefaultMaxJitter / time.Millisecond),
		DefaultRubric:        rubric.Default().Attributes,
		SimJudges:            8,
		SimEntries:           4,
		SimRounds:            5,
		SimWorkers:           runtime.NumCPU() * 2,
		SimQueueSize:         10_000,
	}
}

// LockPolicy returns the entry lock policy described by c.
func (c *Config) LockPolicy() lock.Policy {
	return lock.Policy{
		TTL:        time.Duration(c.LockTTLMS) * time.Millisecond,
		MaxRetries: c.LockMaxRetries,
		BaseDelay:  time.Duration(c.LockBaseBackoffMS) * time.Millisecond,
		MaxJitter:  time.Duration(c.LockMaxJitterMS) * time.Millisecond,
	}
}

// Rubric returns the default contest rubric described by c.
func (c *Config) Rubric() rubric.ContestConfig {
	cfg := rubric.Default()
	cfg.Attributes = append([]rubric.AttributeConfig(nil), c.DefaultRubric...)
	return cfg
}
