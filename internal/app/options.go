package service

import (
	"github.com/google/uuid"

	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/rubric"
	"github.com/okian/scoreline/internal/domain/scoring"
	"github.com/okian/scoreline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLockPolicy sets the entry lock policy used by the default orchestrator.
// It has no effect together with WithOrchestrator.
func WithLockPolicy(p lock.Policy) Option {
	return func(s *Service) {
		if p.Check() == nil {
			s.policy = &p
		}
	}
}

// WithOrchestrator replaces the transaction orchestrator.
func WithOrchestrator(o *scoring.Orchestrator) Option {
	return func(s *Service) {
		if o != nil {
			s.orch = o
		}
	}
}

// WithDefaultRubric sets the rubric used by contests without their own.
func WithDefaultRubric(cfg rubric.ContestConfig) Option {
	return func(s *Service) {
		if cfg.Check() == nil {
			s.defaultRubric = cfg
		}
	}
}

// WithIDGenerator overrides how new score ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func defaultID() string { return uuid.NewString() }
