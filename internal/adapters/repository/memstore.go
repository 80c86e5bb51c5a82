package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// contestDoc is one contest with everything a transaction may touch.
type contestDoc struct {
	contest model.Contest
	entries map[string]model.Entry
	scores  []model.ScoreEntry
	version uint64
}

// MemoryStore is an in-process Store with optimistic concurrency control.
// Values are deep-copied across the API boundary.
type MemoryStore struct {
	settings

	mu       sync.RWMutex
	contests map[string]*contestDoc
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		settings: defaultSettings(),
		contests: map[string]*contestDoc{},
	}
	s.apply(opts)
	return s
}

// RunTransaction implements Store.
func (s *MemoryStore) RunTransaction(ctx context.Context, contestID string, fn TxFunc) error {
	start := time.Now()
	defer func() {
		metrics.RecordStorageLatency("transaction", float64(time.Since(start).Milliseconds()))
	}()

	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transaction on contest %s: %w", contestID, err)
		}
		err := s.attempt(ctx, contestID, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		metrics.RecordStorageConflict()
		s.logger.Debug(ctx, "write conflict, re-running transaction",
			logger.String("contestID", contestID),
			logger.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("contest %s: %w", contestID, ErrConflictRetriesExhausted)
}

func (s *MemoryStore) attempt(ctx context.Context, contestID string, fn TxFunc) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	doc, ok := s.contests[contestID]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	version := doc.version
	s.mu.RUnlock()

	// Reads made after another writer committed would mix two versions, so
	// they fail with ErrConflict and the whole attempt is re-run.
	loadEntry := func(_ context.Context, entryID string) (model.Entry, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if doc.version != version {
			return model.Entry{}, ErrConflict
		}
		e, ok := doc.entries[entryID]
		if !ok {
			return model.Entry{}, fmt.Errorf("%w: %s", model.ErrEntryNotFound, entryID)
		}
		return e.Clone(), nil
	}
	loadScores := func(_ context.Context) ([]model.ScoreEntry, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if doc.version != version {
			return nil, ErrConflict
		}
		return model.CloneScores(doc.scores), nil
	}

	tx := newStagedTx(s.clock(), loadEntry, loadScores)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if !tx.dirty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if current, ok := s.contests[contestID]; !ok || current != doc || doc.version != version {
		return ErrConflict
	}
	for _, e := range tx.stagedEntries() {
		doc.entries[e.ID] = e
	}
	if tx.scoresSet {
		doc.scores = tx.scores
	}
	doc.version++
	return nil
}

// Contest implements Store.
func (s *MemoryStore) Contest(_ context.Context, contestID string) (model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.contests[contestID]
	if !ok {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	c := doc.contest
	if c.Config != nil {
		cfg := *c.Config
		cfg.Attributes = append(cfg.Attributes[:0:0], cfg.Attributes...)
		c.Config = &cfg
	}
	return c, nil
}

// Entry implements Store.
func (s *MemoryStore) Entry(_ context.Context, contestID, entryID string) (model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.contests[contestID]
	if !ok {
		return model.Entry{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	e, ok := doc.entries[entryID]
	if !ok {
		return model.Entry{}, fmt.Errorf("%w: %s", model.ErrEntryNotFound, entryID)
	}
	return e.Clone(), nil
}

// Scores implements Store.
func (s *MemoryStore) Scores(_ context.Context, contestID string) ([]model.ScoreEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.contests[contestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	return model.CloneScores(doc.scores), nil
}

// CreateContest implements Store.
func (s *MemoryStore) CreateContest(_ context.Context, c model.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.contests[c.ID]; exists {
		return fmt.Errorf("contest %s: %w", c.ID, ErrAlreadyExists)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	s.contests[c.ID] = &contestDoc{
		contest: c,
		entries: map[string]model.Entry{},
		scores:  []model.ScoreEntry{},
	}
	return nil
}

// CreateEntry implements Store.
func (s *MemoryStore) CreateEntry(_ context.Context, e model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, ok := s.contests[e.ContestID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrContestNotFound, e.ContestID)
	}
	if _, exists := doc.entries[e.ID]; exists {
		return fmt.Errorf("entry %s: %w", e.ID, ErrAlreadyExists)
	}
	fresh := model.NewEntry(e.ContestID, e.ID, e.Name, e.CreatedAt)
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = s.clock()
	}
	doc.entries[e.ID] = fresh
	doc.version++
	return nil
}

// DeleteEntry implements Store.
func (s *MemoryStore) DeleteEntry(_ context.Context, contestID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, ok := s.contests[contestID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	if _, ok := doc.entries[entryID]; !ok {
		return fmt.Errorf("%w: %s", model.ErrEntryNotFound, entryID)
	}
	delete(doc.entries, entryID)
	doc.scores = withoutEntry(doc.scores, entryID)
	doc.version++
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func withoutEntry(scores []model.ScoreEntry, entryID string) []model.ScoreEntry {
	kept := make([]model.ScoreEntry, 0, len(scores))
	for _, sc := range scores {
		if sc.EntryID != entryID {
			kept = append(kept, sc)
		}
	}
	return kept
}
