package repository

import (
	"time"

	"github.com/okian/scoreline/pkg/logger"
)

const defaultConflictRetries = 10

// settings are shared by every Store implementation.
type settings struct {
	clock           func() time.Time
	conflictRetries int
	logger          logger.Logger
}

func defaultSettings() settings {
	return settings{
		clock:           func() time.Time { return time.Now().UTC() },
		conflictRetries: defaultConflictRetries,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock overrides the source of store-assigned timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithConflictRetries bounds how often a transaction is re-run after a
// write conflict.
func WithConflictRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.conflictRetries = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *settings) apply(opts []Option) {
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
}
