package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/scoreline/internal/adapters/repository"
	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/scoring"
	"github.com/okian/scoreline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(ctx context.Context) *repository.MemoryStore {
	s := repository.NewMemoryStore(
		repository.WithClock(func() time.Time { return now }),
		repository.WithLogger(logger.Nop()),
	)
	So(s.CreateContest(ctx, model.Contest{ID: "c1"}), ShouldBeNil)
	So(s.CreateEntry(ctx, model.Entry{ID: "e1", ContestID: "c1"}), ShouldBeNil)
	return s
}

func setLock(ctx context.Context, s repository.Store, st *lock.State) {
	err := s.RunTransaction(ctx, "c1", func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Entry(ctx, "e1")
		if err != nil {
			return err
		}
		e.ScoreLock = st
		return tx.PutEntry(ctx, e)
	})
	So(err, ShouldBeNil)
}

// addAroma adds one point of aroma for judge j1.
func addAroma(calls *int) scoring.Mutator {
	return func(_ context.Context, st scoring.State, at time.Time) (scoring.Mutation, error) {
		*calls++
		e := st.Entry
		delta := breakdown.Of(map[string]float64{"aroma": 1})
		e.ScoreByUser["j1"] = breakdown.Add(e.ScoreByUser["j1"], delta)
		e.ScoreTotals = breakdown.Add(e.ScoreTotals, delta)
		rec := model.ScoreEntry{ID: "s1", EntryID: "e1", JudgeID: "j1", Breakdown: e.ScoreByUser["j1"], UpdatedAt: at}
		return scoring.Mutation{Entry: e, Scores: []model.ScoreEntry{rec}, Result: rec}, nil
	}
}

type sleeps struct {
	delays []time.Duration
	hook   func(n int)
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	if s.hook != nil {
		s.hook(len(s.delays))
	}
	return nil
}

func policy(retries int) lock.Policy {
	return lock.Policy{TTL: 5 * time.Second, MaxRetries: retries, BaseDelay: 10 * time.Millisecond}
}

func TestOrchestrator_RunLockedUpdate(t *testing.T) {
	Convey("Given an orchestrator over a memory store", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		sl := &sleeps{}
		orch := scoring.NewOrchestrator(store,
			scoring.WithPolicy(policy(3)),
			scoring.WithSleep(sl.sleep),
			scoring.WithLogger(logger.Nop()),
		)
		calls := 0

		Convey("When the entry is free", func() {
			res, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok", addAroma(&calls))
			So(err, ShouldBeNil)
			So(res.ID, ShouldEqual, "s1")
			So(res.UpdatedAt, ShouldEqual, now)
			orch.Wait()

			Convey("Then the delta is committed with the score list", func() {
				e, err := store.Entry(ctx, "c1", "e1")
				So(err, ShouldBeNil)
				So(e.ScoreTotals.Value("aroma"), ShouldEqual, 1)
				scores, _ := store.Scores(ctx, "c1")
				So(scores, ShouldHaveLength, 1)
				So(calls, ShouldEqual, 1)
				So(sl.delays, ShouldBeEmpty)
			})

			Convey("Then the lock is released afterwards", func() {
				e, _ := store.Entry(ctx, "c1", "e1")
				So(e.ScoreLock, ShouldNotBeNil)
				So(e.ScoreLock.Locked, ShouldBeFalse)
				So(e.ScoreLock.HeldAt(now), ShouldBeFalse)
			})
		})

		Convey("When another token holds an unexpired lock", func() {
			held := lock.Acquired("other", now, time.Minute)
			setLock(ctx, store, &held)

			_, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok", addAroma(&calls))

			Convey("Then it backs off and finally reports retry exhaustion", func() {
				So(errors.Is(err, scoring.ErrLockRetryExceeded), ShouldBeTrue)
				So(errors.Is(err, lock.ErrContention), ShouldBeTrue)
				var rex *scoring.RetryExceededError
				So(errors.As(err, &rex), ShouldBeTrue)
				So(rex.Attempts, ShouldEqual, 4)
				So(rex.Last.Holder, ShouldEqual, "other")
				So(sl.delays, ShouldHaveLength, 3)
				So(sl.delays[1], ShouldBeGreaterThan, sl.delays[0])
				So(calls, ShouldEqual, 0)
			})

			Convey("Then nothing is written", func() {
				e, _ := store.Entry(ctx, "c1", "e1")
				So(e.ScoreTotals, ShouldBeEmpty)
				So(e.ScoreLock.Token, ShouldEqual, "other")
			})
		})

		Convey("When the holder releases while we back off", func() {
			held := lock.Acquired("other", now, time.Minute)
			setLock(ctx, store, &held)
			sl.hook = func(n int) {
				if n == 1 {
					So(orch.Release(ctx, "c1", "e1", "other"), ShouldBeNil)
				}
			}

			res, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok", addAroma(&calls))

			Convey("Then the retry succeeds", func() {
				So(err, ShouldBeNil)
				So(res.JudgeID, ShouldEqual, "j1")
				So(sl.delays, ShouldHaveLength, 1)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the previous lock has expired", func() {
			stale := lock.Acquired("crashed", now.Add(-time.Minute), time.Second)
			setLock(ctx, store, &stale)

			_, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok", addAroma(&calls))

			Convey("Then it is acquired without waiting", func() {
				So(err, ShouldBeNil)
				So(sl.delays, ShouldBeEmpty)
			})
		})

		Convey("When the caller already owns the lock", func() {
			mine := lock.Acquired("tok", now, time.Minute)
			setLock(ctx, store, &mine)

			_, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok", addAroma(&calls))
			So(err, ShouldBeNil)
			So(sl.delays, ShouldBeEmpty)
		})

		Convey("When the entry does not exist", func() {
			_, err := orch.RunLockedUpdate(ctx, "c1", "nope", "tok", addAroma(&calls))

			Convey("Then it fails fast without retrying", func() {
				So(errors.Is(err, model.ErrEntryNotFound), ShouldBeTrue)
				So(sl.delays, ShouldBeEmpty)
				So(calls, ShouldEqual, 0)
			})
		})

		Convey("When the contest does not exist", func() {
			_, err := orch.RunLockedUpdate(ctx, "nope", "e1", "tok", addAroma(&calls))
			So(errors.Is(err, model.ErrContestNotFound), ShouldBeTrue)
		})

		Convey("When the mutator fails", func() {
			boom := errors.New("boom")
			_, err := orch.RunLockedUpdate(ctx, "c1", "e1", "tok",
				func(context.Context, scoring.State, time.Time) (scoring.Mutation, error) {
					return scoring.Mutation{}, boom
				})

			Convey("Then its error is returned unchanged and nothing is locked", func() {
				So(err, ShouldEqual, boom)
				e, _ := store.Entry(ctx, "c1", "e1")
				So(e.ScoreLock, ShouldBeNil)
			})
		})
	})
}

type brokenStore struct {
	repository.Store
	err error
}

func (b brokenStore) RunTransaction(context.Context, string, repository.TxFunc) error { return b.err }

func TestOrchestrator_StorageError(t *testing.T) {
	Convey("Given a store whose transactions fail", t, func() {
		disk := errors.New("disk full")
		sl := &sleeps{}
		orch := scoring.NewOrchestrator(brokenStore{err: disk},
			scoring.WithSleep(sl.sleep),
			scoring.WithLogger(logger.Nop()),
		)
		calls := 0

		_, err := orch.RunLockedUpdate(context.Background(), "c1", "e1", "tok", addAroma(&calls))

		Convey("Then the failure surfaces as a StorageError and is not retried", func() {
			var se *scoring.StorageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(errors.Is(err, disk), ShouldBeTrue)
			So(sl.delays, ShouldBeEmpty)
		})
	})
}

func TestOrchestrator_Release(t *testing.T) {
	Convey("Given a lock held by one token", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		orch := scoring.NewOrchestrator(store, scoring.WithLogger(logger.Nop()))
		held := lock.Acquired("owner", now, time.Minute)
		setLock(ctx, store, &held)

		Convey("A different token cannot release it", func() {
			So(orch.Release(ctx, "c1", "e1", "intruder"), ShouldBeNil)
			e, _ := store.Entry(ctx, "c1", "e1")
			So(e.ScoreLock.Locked, ShouldBeTrue)
		})

		Convey("The owner can", func() {
			So(orch.Release(ctx, "c1", "e1", "owner"), ShouldBeNil)
			e, _ := store.Entry(ctx, "c1", "e1")
			So(e.ScoreLock.Locked, ShouldBeFalse)
		})

		Convey("Releasing on a deleted entry is a no-op", func() {
			So(store.DeleteEntry(ctx, "c1", "e1"), ShouldBeNil)
			So(orch.Release(ctx, "c1", "e1", "owner"), ShouldBeNil)
		})
	})
}
