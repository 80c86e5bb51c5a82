package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "SCORELINE_"
	EnvConfigFile = "SCORELINE_CONFIG"
)

var drivers = map[string]struct{}{
	"memory":   {},
	"sqlite":   {},
	"postgres": {},
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SCORELINE_CONFIG is set
//  3. env (prefix SCORELINE_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SCORELINE_LOCK_TTL_MS -> lock_ttl_ms (flat keys, underscores kept to
	// match the koanf tags).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	cfg := *base
	// A configured rubric replaces the default list instead of merging into it.
	if k.Exists("default_rubric") {
		cfg.DefaultRubric = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, ok := drivers[c.StoreDriver]; !ok {
		return fmt.Errorf("%w: store_driver %q must be one of memory, sqlite, postgres", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreConflictRetries < 0 {
		return fmt.Errorf("%w: store_conflict_retries must not be negative", ErrInvalidConfig)
	}
	if err := c.LockPolicy().Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Rubric().Check(); err != nil {
		return fmt.Errorf("%w: default_rubric: %w", ErrInvalidConfig, err)
	}
	if c.SimWorkers <= 0 || c.SimQueueSize <= 0 {
		return fmt.Errorf("%w: sim_workers and sim_queue_size must be positive", ErrInvalidConfig)
	}
	if c.SimJudges < 0 || c.SimEntries < 0 || c.SimRounds < 0 {
		return fmt.Errorf("%w: simulator sizes must not be negative", ErrInvalidConfig)
	}
	return nil
}
