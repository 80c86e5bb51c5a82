// Package service exposes score submission, revision and removal on top of
// the locked transaction orchestrator, plus lock-free read queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/scoreline/internal/adapters/repository"
	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/rubric"
	"github.com/okian/scoreline/internal/domain/scoring"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// SubmitRequest is a judge's full score for an entry.
type SubmitRequest struct {
	ContestID     string
	EntryID       string
	JudgeID       string
	Breakdown     breakdown.Breakdown
	NotApplicable []string
	Notes         string
}

// UpdateRequest revises an existing score record. Only provided attributes
// change. A nil NotApplicable keeps the stored set; an empty one clears it.
// A nil Notes keeps the stored notes.
type UpdateRequest struct {
	ContestID     string
	ScoreID       string
	Breakdown     breakdown.Breakdown
	NotApplicable []string
	Notes         *string
}

// Service implements the score operations.
type Service struct {
	store         repository.Store
	orch          *scoring.Orchestrator
	policy        *lock.Policy
	defaultRubric rubric.ContestConfig
	newID         func() string
	logger        logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		defaultRubric: rubric.Default(),
		newID:         defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.orch == nil {
		orchOpts := []scoring.Option{scoring.WithLogger(s.logger.Named("scoring"))}
		if s.policy != nil {
			orchOpts = append(orchOpts, scoring.WithPolicy(*s.policy))
		}
		s.orch = scoring.NewOrchestrator(store, orchOpts...)
	}
	return s
}

// Rubric returns the contest's own rubric, or the default when it has none.
func (s *Service) Rubric(ctx context.Context, contestID string) (rubric.ContestConfig, error) {
	c, err := s.store.Contest(ctx, contestID)
	if err != nil {
		return rubric.ContestConfig{}, err
	}
	if c.Config == nil || len(c.Config.Attributes) == 0 {
		return s.defaultRubric, nil
	}
	return *c.Config, nil
}

// CreateContest stores a contest after checking its rubric, if it has one.
func (s *Service) CreateContest(ctx context.Context, c model.Contest) error {
	if c.ID == "" {
		return fmt.Errorf("%w: contest id is required", ErrInvalidRequest)
	}
	if c.Config != nil && len(c.Config.Attributes) > 0 {
		if err := c.Config.Check(); err != nil {
			return err
		}
	}
	return s.store.CreateContest(ctx, c)
}

// CreateEntry stores a new entry with empty score fields.
func (s *Service) CreateEntry(ctx context.Context, contestID, entryID, name string) error {
	if contestID == "" || entryID == "" {
		return fmt.Errorf("%w: contest and entry ids are required", ErrInvalidRequest)
	}
	return s.store.CreateEntry(ctx, model.Entry{ID: entryID, ContestID: contestID, Name: name})
}

// Submit records a judge's score for an entry. A judge that already scored
// the entry has their record replaced in place.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (model.ScoreEntry, error) {
	res, err := s.submit(ctx, req)
	s.observe(ctx, "submit", err)
	return res, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (model.ScoreEntry, error) {
	if req.ContestID == "" || req.EntryID == "" || req.JudgeID == "" {
		return model.ScoreEntry{}, fmt.Errorf("%w: contest, entry and judge ids are required", ErrInvalidRequest)
	}
	cfg, err := s.Rubric(ctx, req.ContestID)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	na := rubric.NormalizeNA(req.NotApplicable, cfg.Attributes)
	if errs := rubric.Validate(req.Breakdown, cfg.Attributes, na); len(errs) > 0 {
		return model.ScoreEntry{}, errs
	}
	next := scored(req.Breakdown, cfg, na)
	newID := s.newID()

	return s.orch.RunLockedUpdate(ctx, req.ContestID, req.EntryID, lock.NewToken(),
		func(_ context.Context, st scoring.State, now time.Time) (scoring.Mutation, error) {
			entry, scores := st.Entry, st.Scores
			applyJudge(&entry, req.JudgeID, next)

			var rec model.ScoreEntry
			if i := model.FindJudgeScore(scores, req.EntryID, req.JudgeID); i >= 0 {
				rec = scores[i]
				rec.Breakdown = next.Clone()
				rec.NotApplicable = na
				rec.Notes = req.Notes
				rec.UpdatedAt = now
				scores[i] = rec
			} else {
				rec = model.ScoreEntry{
					ID:            newID,
					EntryID:       req.EntryID,
					JudgeID:       req.JudgeID,
					Breakdown:     next.Clone(),
					NotApplicable: na,
					Notes:         req.Notes,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				scores = append(scores, rec)
			}
			return scoring.Mutation{Entry: entry, Scores: scores, Result: rec.Clone()}, nil
		})
}

// Update merges a partial breakdown onto an existing record. The totals
// move by the difference from the judge's previously committed breakdown.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (model.ScoreEntry, error) {
	res, err := s.update(ctx, req)
	s.observe(ctx, "update", err)
	return res, err
}

func (s *Service) update(ctx context.Context, req UpdateRequest) (model.ScoreEntry, error) {
	if req.ContestID == "" || req.ScoreID == "" {
		return model.ScoreEntry{}, fmt.Errorf("%w: contest and score ids are required", ErrInvalidRequest)
	}
	cfg, err := s.Rubric(ctx, req.ContestID)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	existing, err := s.findScore(ctx, req.ContestID, req.ScoreID)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	// Reject bad input before any write; the mutator checks again against
	// the committed record.
	if _, _, errs := revise(existing, req, cfg); len(errs) > 0 {
		return model.ScoreEntry{}, errs
	}

	return s.orch.RunLockedUpdate(ctx, req.ContestID, existing.EntryID, lock.NewToken(),
		func(_ context.Context, st scoring.State, now time.Time) (scoring.Mutation, error) {
			entry, scores := st.Entry, st.Scores
			i := model.FindScore(scores, req.ScoreID)
			if i < 0 {
				return scoring.Mutation{}, fmt.Errorf("%w: %s", model.ErrScoreNotFound, req.ScoreID)
			}
			rec := scores[i]
			next, na, errs := revise(rec, req, cfg)
			if len(errs) > 0 {
				return scoring.Mutation{}, errs
			}
			applyJudge(&entry, rec.JudgeID, next)

			rec.Breakdown = next.Clone()
			rec.NotApplicable = na
			if req.Notes != nil {
				rec.Notes = *req.Notes
			}
			rec.UpdatedAt = now
			scores[i] = rec
			return scoring.Mutation{Entry: entry, Scores: scores, Result: rec.Clone()}, nil
		})
}

// Delete removes a score record and subtracts its breakdown from the totals.
func (s *Service) Delete(ctx context.Context, contestID, scoreID string) error {
	err := s.remove(ctx, contestID, scoreID)
	s.observe(ctx, "delete", err)
	return err
}

func (s *Service) remove(ctx context.Context, contestID, scoreID string) error {
	if contestID == "" || scoreID == "" {
		return fmt.Errorf("%w: contest and score ids are required", ErrInvalidRequest)
	}
	cfg, err := s.Rubric(ctx, contestID)
	if err != nil {
		return err
	}
	existing, err := s.findScore(ctx, contestID, scoreID)
	if err != nil {
		return err
	}

	_, err = s.orch.RunLockedUpdate(ctx, contestID, existing.EntryID, lock.NewToken(),
		func(_ context.Context, st scoring.State, _ time.Time) (scoring.Mutation, error) {
			entry, scores := st.Entry, st.Scores
			i := model.FindScore(scores, scoreID)
			if i < 0 {
				return scoring.Mutation{}, fmt.Errorf("%w: %s", model.ErrScoreNotFound, scoreID)
			}
			rec := scores[i]
			prev, ok := entry.ScoreByUser[rec.JudgeID]
			if !ok {
				prev = rec.Breakdown
			}
			entry.ScoreTotals = breakdown.Add(entry.ScoreTotals, breakdown.Diff(cfg.Empty(), prev))
			delete(entry.ScoreByUser, rec.JudgeID)
			scores = append(scores[:i], scores[i+1:]...)
			return scoring.Mutation{Entry: entry, Scores: scores, Result: rec}, nil
		})
	return err
}

// DeleteEntry removes an entry together with every score recorded for it.
func (s *Service) DeleteEntry(ctx context.Context, contestID, entryID string) error {
	return s.store.DeleteEntry(ctx, contestID, entryID)
}

// ListByEntry returns every score record for an entry. It never waits on
// the entry lock.
func (s *Service) ListByEntry(ctx context.Context, contestID, entryID string) ([]model.ScoreEntry, error) {
	return s.list(ctx, contestID, func(sc model.ScoreEntry) bool { return sc.EntryID == entryID })
}

// ListByJudge returns every score record a judge made in a contest.
func (s *Service) ListByJudge(ctx context.Context, contestID, judgeID string) ([]model.ScoreEntry, error) {
	return s.list(ctx, contestID, func(sc model.ScoreEntry) bool { return sc.JudgeID == judgeID })
}

// Entry returns the entry with its aggregate fields.
func (s *Service) Entry(ctx context.Context, contestID, entryID string) (model.Entry, error) {
	return s.store.Entry(ctx, contestID, entryID)
}

// Wait blocks until background lock releases have finished.
func (s *Service) Wait() { s.orch.Wait() }

func (s *Service) list(ctx context.Context, contestID string, keep func(model.ScoreEntry) bool) ([]model.ScoreEntry, error) {
	scores, err := s.store.Scores(ctx, contestID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoreEntry, 0, len(scores))
	for _, sc := range scores {
		if keep(sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Service) findScore(ctx context.Context, contestID, scoreID string) (model.ScoreEntry, error) {
	scores, err := s.store.Scores(ctx, contestID)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	i := model.FindScore(scores, scoreID)
	if i < 0 {
		return model.ScoreEntry{}, fmt.Errorf("%w: %s", model.ErrScoreNotFound, scoreID)
	}
	return scores[i], nil
}

func (s *Service) observe(ctx context.Context, op string, err error) {
	outcome := "ok"
	var verrs rubric.Errors
	switch {
	case err == nil:
	case errors.As(err, &verrs):
		outcome = "invalid"
		for _, v := range verrs {
			metrics.RecordValidationFailure(string(v.Rule))
		}
	case errors.Is(err, ErrInvalidRequest):
		outcome = "invalid"
	case errors.Is(err, scoring.ErrLockRetryExceeded):
		outcome = "busy"
	case errors.Is(err, model.ErrContestNotFound),
		errors.Is(err, model.ErrEntryNotFound),
		errors.Is(err, model.ErrScoreNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		s.logger.Error(ctx, "score operation failed", logger.String("op", op), logger.Error(err))
	}
	metrics.RecordScoreOperation(op, outcome)
	if outcome != "ok" && outcome != "error" {
		s.logger.Debug(ctx, "score operation rejected",
			logger.String("op", op),
			logger.String("outcome", outcome),
			logger.Error(err),
		)
	}
}

// applyJudge replaces judgeID's breakdown and moves the totals by the delta.
func applyJudge(entry *model.Entry, judgeID string, next breakdown.Breakdown) {
	prev := entry.ScoreByUser[judgeID]
	entry.ScoreTotals = breakdown.Add(entry.ScoreTotals, breakdown.Diff(next, prev))
	if entry.ScoreByUser == nil {
		entry.ScoreByUser = map[string]breakdown.Breakdown{}
	}
	entry.ScoreByUser[judgeID] = next.Clone()
}

// revise computes the breakdown and N/A set an update would store for rec.
// Attributes newly marked N/A lose their stored value.
func revise(rec model.ScoreEntry, req UpdateRequest, cfg rubric.ContestConfig) (breakdown.Breakdown, []string, rubric.Errors) {
	na := rec.NotApplicable
	if req.NotApplicable != nil {
		na = rubric.NormalizeNA(req.NotApplicable, cfg.Attributes)
	}
	base := rec.Breakdown.Clone()
	for _, id := range na {
		delete(base, id)
	}
	merged := breakdown.Merge(base, req.Breakdown)
	if errs := rubric.Validate(merged, cfg.Attributes, na); len(errs) > 0 {
		return nil, nil, errs
	}
	return scored(merged, cfg, na), na, nil
}

// scored keeps only the rubric attributes that are not N/A.
func scored(b breakdown.Breakdown, cfg rubric.ContestConfig, na []string) breakdown.Breakdown {
	skip := make(map[string]struct{}, len(na))
	for _, id := range na {
		skip[id] = struct{}{}
	}
	out := make(breakdown.Breakdown, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		if _, ok := skip[a.ID]; ok {
			continue
		}
		if v, ok := b[a.ID]; ok {
			out[a.ID] = v
		}
	}
	return out.Clone()
}
