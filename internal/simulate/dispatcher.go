package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/okian/scoreline/internal/adapters/mq/dedupe"
	service "github.com/okian/scoreline/internal/app"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/rubric"
	"github.com/okian/scoreline/internal/domain/scoring"
	"github.com/okian/scoreline/pkg/logger"
)

// dispatcher runs commands against the service and tallies outcomes.
// Expected rejections are counted, not returned, so the worker only sees
// genuine failures. Commands whose id was already dispatched are dropped.
type dispatcher struct {
	svc    *service.Service
	seen   dedupe.Deduper
	logger logger.Logger

	submitted atomic.Int64
	updated   atomic.Int64
	deleted   atomic.Int64
	rejected  atomic.Int64
	busy      atomic.Int64
	notFound  atomic.Int64
	failed    atomic.Int64
	dupes     atomic.Int64
}

func newDispatcher(svc *service.Service, seen dedupe.Deduper, l logger.Logger) *dispatcher {
	return &dispatcher{svc: svc, seen: seen, logger: l}
}

func (d *dispatcher) Dispatch(ctx context.Context, c model.Command) error { //nolint:gocritic // hugeParam: matches worker.Dispatcher
	if d.seen.SeenAndRecord(ctx, c.ID) {
		d.dupes.Add(1)
		d.logger.Debug(ctx, "dropping redelivered command", logger.String("command_id", c.ID))
		return nil
	}

	var err error
	switch c.Kind {
	case model.CommandSubmit:
		_, err = d.svc.Submit(ctx, service.SubmitRequest{
			ContestID:     c.ContestID,
			EntryID:       c.EntryID,
			JudgeID:       c.JudgeID,
			Breakdown:     c.Breakdown,
			NotApplicable: c.NotApplicable,
			Notes:         c.Notes,
		})
		if err == nil {
			d.submitted.Add(1)
		}
	case model.CommandUpdate:
		var id string
		if id, err = d.scoreID(ctx, c); err == nil {
			_, err = d.svc.Update(ctx, service.UpdateRequest{
				ContestID: c.ContestID,
				ScoreID:   id,
				Breakdown: c.Breakdown,
			})
		}
		if err == nil {
			d.updated.Add(1)
		}
	case model.CommandDelete:
		var id string
		if id, err = d.scoreID(ctx, c); err == nil {
			err = d.svc.Delete(ctx, c.ContestID, id)
		}
		if err == nil {
			d.deleted.Add(1)
		}
	default:
		err = fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return d.tally(ctx, c, err)
}

// scoreID finds the judge's record for the command's entry.
func (d *dispatcher) scoreID(ctx context.Context, c model.Command) (string, error) { //nolint:gocritic // hugeParam
	scores, err := d.svc.ListByJudge(ctx, c.ContestID, c.JudgeID)
	if err != nil {
		return "", err
	}
	for _, s := range scores {
		if s.EntryID == c.EntryID {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%w: judge %s entry %s", model.ErrScoreNotFound, c.JudgeID, c.EntryID)
}

func (d *dispatcher) tally(ctx context.Context, c model.Command, err error) error { //nolint:gocritic // hugeParam
	var verrs rubric.Errors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verrs):
		d.rejected.Add(1)
	case errors.Is(err, scoring.ErrLockRetryExceeded):
		d.busy.Add(1)
	case errors.Is(err, model.ErrScoreNotFound):
		// A delete or revision lost the race with an earlier delete.
		d.notFound.Add(1)
	default:
		d.failed.Add(1)
		d.seen.Unrecord(ctx, c.ID)
		return err
	}
	d.logger.Debug(ctx, "command rejected",
		logger.String("command_id", c.ID),
		logger.String("kind", string(c.Kind)),
		logger.Error(err),
	)
	return nil
}

func (d *dispatcher) fill(s *Stats) {
	s.Submitted = d.submitted.Load()
	s.Updated = d.updated.Load()
	s.Deleted = d.deleted.Load()
	s.Rejected = d.rejected.Load()
	s.Busy = d.busy.Load()
	s.NotFound = d.notFound.Load()
	s.Failed = d.failed.Load()
	s.Duplicates = d.dupes.Load()
}
