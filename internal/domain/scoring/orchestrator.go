// Package scoring runs locked read-modify-write transactions over an entry's
// aggregate score fields.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/scoreline/internal/adapters/repository"
	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/rubric"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// State is what a Mutator sees: the current entry and the contest's flat
// score list, both private copies.
type State struct {
	Entry  model.Entry
	Scores []model.ScoreEntry
}

// Mutation is what a Mutator returns. Entry and Scores replace the stored
// documents. Result is handed back to the caller of RunLockedUpdate.
type Mutation struct {
	Entry  model.Entry
	Scores []model.ScoreEntry
	Result model.ScoreEntry
}

// Mutator computes the new entry fields and score list. It may be invoked
// several times for a single update and must not have side effects.
type Mutator func(ctx context.Context, st State, now time.Time) (Mutation, error)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the lock TTL and retry policy.
func WithPolicy(p lock.Policy) Option {
	return func(o *Orchestrator) {
		if p.Check() == nil {
			o.policy = p
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSleep replaces the backoff sleep. The function must honour ctx.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithReleaseTimeout bounds the asynchronous lock release write.
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}

// Orchestrator serializes score mutations per entry with the advisory lock.
type Orchestrator struct {
	store          repository.Store
	policy         lock.Policy
	logger         logger.Logger
	sleep          func(ctx context.Context, d time.Duration) error
	releaseTimeout time.Duration

	releases sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over store.
func NewOrchestrator(store repository.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		policy: lock.DefaultPolicy(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("scoring")
	}
	if o.releaseTimeout == 0 {
		o.releaseTimeout = o.policy.TTL
	}
	return o
}

// Policy returns the lock policy in effect.
func (o *Orchestrator) Policy() lock.Policy { return o.policy }

// RunLockedUpdate applies mutate to entryID under the entry lock identified
// by token. Contention is retried with exponential backoff and jitter; any
// other failure aborts immediately. On success the lock is released in the
// background and the mutator's result is returned.
func (o *Orchestrator) RunLockedUpdate(
	ctx context.Context,
	contestID, entryID, token string,
	mutate Mutator,
) (model.ScoreEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordTransactionLatency(float64(time.Since(start).Milliseconds()))
	}()

	log := o.logger.With(
		logger.String("contestID", contestID),
		logger.String("entryID", entryID),
	)

	var last *lock.ContentionError
	for attempt := 0; attempt <= o.policy.MaxRetries; attempt++ {
		res, err := o.attempt(ctx, contestID, entryID, token, mutate)
		if err == nil {
			metrics.RecordLockAcquired()
			metrics.RecordTransactionAttempts(attempt + 1)
			o.releaseAsync(ctx, contestID, entryID, token)
			return res, nil
		}

		if !errors.As(err, &last) {
			metrics.RecordTransactionAttempts(attempt + 1)
			return model.ScoreEntry{}, err
		}
		metrics.RecordLockContention()
		if attempt == o.policy.MaxRetries {
			break
		}

		delay := o.policy.Backoff(attempt)
		metrics.RecordLockBackoff(float64(delay.Milliseconds()))
		log.Debug(ctx, "entry locked, backing off",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.String("holder", last.Holder),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return model.ScoreEntry{}, fmt.Errorf("entry %s: waiting for lock: %w", entryID, err)
		}
	}

	metrics.RecordLockRetryExceeded()
	metrics.RecordTransactionAttempts(o.policy.MaxRetries + 1)
	log.Warn(ctx, "entry lock retries exceeded", logger.Int("attempts", o.policy.MaxRetries+1))
	return model.ScoreEntry{}, &RetryExceededError{
		EntryID:  entryID,
		Attempts: o.policy.MaxRetries + 1,
		Last:     last,
	}
}

func (o *Orchestrator) attempt(
	ctx context.Context,
	contestID, entryID, token string,
	mutate Mutator,
) (model.ScoreEntry, error) {
	var (
		result    model.ScoreEntry
		mutateErr error
	)
	err := o.store.RunTransaction(ctx, contestID, func(ctx context.Context, tx repository.Tx) error {
		mutateErr = nil
		now := tx.Now()

		entry, err := tx.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		if err := lock.CheckAcquire(entry.ScoreLock, token, now); err != nil {
			return err
		}
		scores, err := tx.Scores(ctx)
		if err != nil {
			return err
		}

		m, err := mutate(ctx, State{Entry: entry, Scores: scores}, now)
		if err != nil {
			mutateErr = err
			return err
		}

		stamp := lock.Acquired(token, now, o.policy.TTL)
		m.Entry.ID = entry.ID
		m.Entry.ContestID = entry.ContestID
		m.Entry.ScoreLock = &stamp
		if err := tx.PutEntry(ctx, m.Entry); err != nil {
			return err
		}
		if err := tx.PutScores(ctx, m.Scores); err != nil {
			return err
		}
		result = m.Result
		return nil
	})
	if err == nil {
		return result, nil
	}
	if mutateErr != nil {
		// Mutator failures are returned as the mutator produced them.
		return model.ScoreEntry{}, mutateErr
	}
	return model.ScoreEntry{}, o.classify(ctx, err)
}

// classify keeps typed domain failures intact and wraps everything else as a
// StorageError.
func (o *Orchestrator) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, lock.ErrContention),
		errors.Is(err, model.ErrContestNotFound),
		errors.Is(err, model.ErrEntryNotFound),
		errors.Is(err, model.ErrScoreNotFound),
		errors.Is(err, rubric.ErrInvalidBreakdown),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	metrics.RecordStorageError()
	metrics.RecordErrorByComponent("scoring", "storage")
	o.logger.Error(ctx, "score transaction failed", logger.Error(err))
	return &StorageError{Op: "transaction", Err: err}
}

// releaseAsync clears the lock after the mutating transaction committed. A
// failed release is only logged; the lock expires on its own.
func (o *Orchestrator) releaseAsync(ctx context.Context, contestID, entryID, token string) {
	o.releases.Add(1)
	go func() {
		defer o.releases.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.releaseTimeout)
		defer cancel()
		if err := o.Release(rctx, contestID, entryID, token); err != nil {
			metrics.RecordLockReleaseError()
			o.logger.Warn(rctx, "lock release failed, relying on expiry",
				logger.String("entryID", entryID),
				logger.Error(err),
			)
			return
		}
		metrics.RecordLockReleased()
	}()
}

// Release clears the lock on entryID if token still owns it. A lock that has
// since been taken over, or an entry that no longer exists, is left alone.
func (o *Orchestrator) Release(ctx context.Context, contestID, entryID, token string) error {
	err := o.store.RunTransaction(ctx, contestID, func(ctx context.Context, tx repository.Tx) error {
		entry, err := tx.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		freed, ok := lock.Released(entry.ScoreLock, token, tx.Now())
		if !ok {
			return nil
		}
		entry.ScoreLock = &freed
		return tx.PutEntry(ctx, entry)
	})
	if errors.Is(err, model.ErrEntryNotFound) || errors.Is(err, model.ErrContestNotFound) {
		return nil
	}
	return err
}

// Wait blocks until every background lock release has finished.
func (o *Orchestrator) Wait() { o.releases.Wait() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
