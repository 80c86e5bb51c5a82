package simulate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/scoreline/internal/adapters/repository"
	service "github.com/okian/scoreline/internal/app"
	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/rubric"
	"github.com/okian/scoreline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestService() *service.Service {
	store := repository.NewMemoryStore(
		repository.WithConflictRetries(1000),
		repository.WithLogger(logger.Nop()),
	)
	return service.New(store,
		service.WithLogger(logger.Nop()),
		service.WithLockPolicy(lock.Policy{
			TTL:        5 * time.Second,
			MaxRetries: 50,
			BaseDelay:  time.Millisecond,
			MaxJitter:  time.Millisecond,
		}),
	)
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator over the default rubric", t, func() {
		cfg := Config{Judges: 3, Entries: 2, Rounds: 2, Seed: 42, DeleteEvery: 5, InvalidEvery: 7}
		entries := []string{"e0", "e1"}
		judges := []string{"j0", "j1", "j2"}

		cmds := newGenerator(cfg, "c1", rubric.Default()).commands(entries, judges)

		Convey("It emits one command per pair per round", func() {
			So(cmds, ShouldHaveLength, 2*3*3)
		})

		Convey("The first round submits full breakdowns", func() {
			for _, c := range cmds[:6] {
				So(c.Kind, ShouldEqual, model.CommandSubmit)
				So(c.ContestID, ShouldEqual, "c1")
				So(c.Breakdown.Keys(), ShouldHaveLength, 4)
			}
		})

		Convey("Values are whole numbers, at most one above the range", func() {
			for _, c := range cmds {
				for _, k := range c.Breakdown.Keys() {
					v := c.Breakdown.Value(k)
					So(v, ShouldEqual, float64(int(v)))
					So(v, ShouldBeBetweenOrEqual, rubric.DefaultMin, rubric.DefaultMax+1)
				}
			}
		})

		Convey("Delete commands carry no breakdown", func() {
			for _, c := range cmds {
				if c.Kind == model.CommandDelete {
					So(c.Breakdown, ShouldBeNil)
				}
			}
		})

		Convey("Redelivered commands repeat earlier ids", func() {
			redo := cfg
			redo.RedeliverEvery = 4
			again := newGenerator(redo, "c1", rubric.Default()).commands(entries, judges)
			So(again, ShouldHaveLength, 18+4)
			So(again[18], ShouldResemble, again[3])
			So(again[21], ShouldResemble, again[15])
		})

		Convey("The same seed yields the same commands", func() {
			again := newGenerator(cfg, "c1", rubric.Default()).commands(entries, judges)
			So(again, ShouldResemble, cmds)
		})
	})
}

func TestCheckEntry(t *testing.T) {
	Convey("Given an entry and its records", t, func() {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		entry := model.NewEntry("c1", "e1", "Entry", now)
		entry.ScoreByUser["j1"] = breakdown.Of(map[string]float64{"aroma": 8})
		entry.ScoreByUser["j2"] = breakdown.Of(map[string]float64{"aroma": 6})
		entry.ScoreTotals = breakdown.Of(map[string]float64{"aroma": 14})
		scores := []model.ScoreEntry{
			{ID: "s1", EntryID: "e1", JudgeID: "j1", Breakdown: breakdown.Of(map[string]float64{"aroma": 8})},
			{ID: "s2", EntryID: "e1", JudgeID: "j2", Breakdown: breakdown.Of(map[string]float64{"aroma": 6})},
		}

		Convey("A consistent entry has no violations", func() {
			So(checkEntry(entry, scores, now), ShouldBeEmpty)
		})

		Convey("Drifted totals are reported", func() {
			entry.ScoreTotals = breakdown.Of(map[string]float64{"aroma": 15})
			So(checkEntry(entry, scores, now), ShouldHaveLength, 1)
		})

		Convey("A duplicate record is reported", func() {
			scores = append(scores, model.ScoreEntry{ID: "s3", EntryID: "e1", JudgeID: "j2", Breakdown: breakdown.Of(map[string]float64{"aroma": 6})})
			So(checkEntry(entry, scores, now), ShouldHaveLength, 1)
		})

		Convey("A record without an entry breakdown is reported", func() {
			scores = append(scores, model.ScoreEntry{ID: "s3", EntryID: "e1", JudgeID: "j3", Breakdown: breakdown.Breakdown{}})
			So(checkEntry(entry, scores, now), ShouldHaveLength, 1)
		})

		Convey("A held lock is reported and an expired one is not", func() {
			held := lock.Acquired("tok", now, time.Second)
			entry.ScoreLock = &held
			So(checkEntry(entry, scores, now), ShouldHaveLength, 1)
			So(checkEntry(entry, scores, now.Add(2*time.Second)), ShouldBeEmpty)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a service over the memory store", t, func() {
		ctx := context.Background()
		svc := newTestService()

		Convey("A concurrent run keeps every entry consistent", func() {
			stats, err := Run(ctx, svc, &Config{
				Judges:         6,
				Entries:        3,
				Rounds:         3,
				Workers:        8,
				QueueSize:      16,
				DeleteEvery:    11,
				InvalidEvery:   13,
				RedeliverEvery: 9,
				Seed:           7,
			})
			So(err, ShouldBeNil)
			So(stats.Violations, ShouldBeEmpty)
			So(stats.Commands, ShouldEqual, 6*3*4+8)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Rejected, ShouldBeGreaterThan, 0)
			So(stats.Duplicates, ShouldEqual, 8)
			handled := stats.Submitted + stats.Updated + stats.Deleted + stats.Rejected + stats.Busy + stats.NotFound + stats.Duplicates
			So(handled, ShouldEqual, stats.Commands)
		})

		Convey("A canceled context stops the run", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Run(cctx, svc, &Config{Judges: 1, Entries: 1, Rounds: 1, Workers: 1, QueueSize: 1, Seed: 1})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvariantViolated), ShouldBeFalse)
		})
	})
}
