package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	service "github.com/okian/scoreline/internal/app"
	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/model"
)

// maxVerifyFanOut bounds concurrent entry reads during verification.
const maxVerifyFanOut = 8

// verify reads every entry back and reports each broken invariant:
//   - totals equal the sum of the per-judge breakdowns
//   - each judge in the per-judge map has exactly one record with the same breakdown
//   - no record exists for a judge missing from the map
//   - the advisory lock is no longer held
func verify(ctx context.Context, svc *service.Service, contestID string, entryIDs []string) ([]string, error) {
	var (
		mu         sync.Mutex
		violations []string
	)
	report := func(format string, args ...any) {
		mu.Lock()
		violations = append(violations, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxVerifyFanOut)
	for _, id := range entryIDs {
		g.Go(func() error {
			entry, err := svc.Entry(gctx, contestID, id)
			if err != nil {
				return fmt.Errorf("read entry %s: %w", id, err)
			}
			scores, err := svc.ListByEntry(gctx, contestID, id)
			if err != nil {
				return fmt.Errorf("list scores for %s: %w", id, err)
			}
			for _, v := range checkEntry(entry, scores, time.Now()) {
				report("entry %s: %s", id, v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return violations, nil
}

// checkEntry returns the invariant violations of one entry and its records.
func checkEntry(entry model.Entry, scores []model.ScoreEntry, now time.Time) []string {
	var out []string

	all := make([]breakdown.Breakdown, 0, len(entry.ScoreByUser))
	for _, b := range entry.ScoreByUser {
		all = append(all, b)
	}
	if want := breakdown.Sum(all...); !breakdown.Equal(entry.ScoreTotals, want) {
		out = append(out, fmt.Sprintf("totals %v do not match per-judge sum %v", values(entry.ScoreTotals), values(want)))
	}

	byJudge := make(map[string][]model.ScoreEntry, len(scores))
	for _, s := range scores {
		byJudge[s.JudgeID] = append(byJudge[s.JudgeID], s)
	}
	for judge, b := range entry.ScoreByUser {
		recs := byJudge[judge]
		switch {
		case len(recs) != 1:
			out = append(out, fmt.Sprintf("judge %s has %d records", judge, len(recs)))
		case !breakdown.Equal(recs[0].Breakdown, b):
			out = append(out, fmt.Sprintf("judge %s record %v differs from entry %v", judge, values(recs[0].Breakdown), values(b)))
		}
	}
	for judge := range byJudge {
		if _, ok := entry.ScoreByUser[judge]; !ok {
			out = append(out, fmt.Sprintf("judge %s has a record but no entry breakdown", judge))
		}
	}

	if entry.ScoreLock != nil && entry.ScoreLock.HeldAt(now) {
		out = append(out, "score lock still held by "+entry.ScoreLock.Token)
	}
	return out
}

func values(b breakdown.Breakdown) map[string]float64 {
	out := make(map[string]float64, len(b))
	for _, k := range b.Keys() {
		out[k] = b.Value(k)
	}
	return out
}
