package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/internal/domain/rubric"
)

// generator produces judge commands. Values are whole numbers so totals can
// be compared exactly regardless of the order deltas were applied in.
type generator struct {
	cfg       Config
	contestID string
	rubric    rubric.ContestConfig
	rng       *rand.Rand
	seq       int
}

func newGenerator(cfg Config, contestID string, rb rubric.ContestConfig) *generator {
	return &generator{
		cfg:       cfg,
		contestID: contestID,
		rubric:    rb,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)), //nolint:gosec // simulation does not need a CSPRNG
	}
}

// commands returns the initial submissions for every (entry, judge) pair,
// followed by Rounds rounds of revisions, each round shuffled, and finally
// the redelivered copies.
func (g *generator) commands(entryIDs, judgeIDs []string) []model.Command {
	out := make([]model.Command, 0, len(entryIDs)*len(judgeIDs)*(g.cfg.Rounds+1))
	for round := 0; round <= g.cfg.Rounds; round++ {
		batch := make([]model.Command, 0, len(entryIDs)*len(judgeIDs))
		for _, e := range entryIDs {
			for _, j := range judgeIDs {
				batch = append(batch, g.next(round, e, j))
			}
		}
		g.rng.Shuffle(len(batch), func(a, b int) { batch[a], batch[b] = batch[b], batch[a] })
		out = append(out, batch...)
	}
	if n := g.cfg.RedeliverEvery; n > 0 {
		total := len(out)
		for i := n - 1; i < total; i += n {
			out = append(out, out[i])
		}
	}
	return out
}

func (g *generator) next(round int, entryID, judgeID string) model.Command {
	g.seq++
	c := model.Command{
		ID:        fmt.Sprintf("cmd-%06d", g.seq),
		ContestID: g.contestID,
		EntryID:   entryID,
		JudgeID:   judgeID,
	}

	switch {
	case round == 0:
		c.Kind = model.CommandSubmit
		c.Breakdown = g.full()
	case g.cfg.DeleteEvery > 0 && g.seq%g.cfg.DeleteEvery == 0:
		c.Kind = model.CommandDelete
	case g.rng.IntN(3) == 0:
		// Resubmission goes through the upsert path.
		c.Kind = model.CommandSubmit
		c.Breakdown = g.full()
	default:
		c.Kind = model.CommandUpdate
		c.Breakdown = g.partial()
	}

	if g.cfg.InvalidEvery > 0 && g.seq%g.cfg.InvalidEvery == 0 && c.Kind != model.CommandDelete {
		g.corrupt(c.Breakdown)
	}
	return c
}

func (g *generator) full() breakdown.Breakdown {
	b := make(breakdown.Breakdown, len(g.rubric.Attributes))
	for _, a := range g.rubric.Attributes {
		b[a.ID] = breakdown.Float(g.value(a))
	}
	return b
}

func (g *generator) partial() breakdown.Breakdown {
	b := breakdown.Breakdown{}
	for _, a := range g.rubric.Attributes {
		if g.rng.IntN(2) == 0 {
			b[a.ID] = breakdown.Float(g.value(a))
		}
	}
	if len(b) == 0 {
		a := g.rubric.Attributes[g.rng.IntN(len(g.rubric.Attributes))]
		b[a.ID] = breakdown.Float(g.value(a))
	}
	return b
}

// value draws a whole number inside the attribute's range.
func (g *generator) value(a rubric.AttributeConfig) float64 {
	lo, hi := a.Bounds()
	l, h := math.Ceil(lo), math.Floor(hi)
	if h < l {
		return lo
	}
	return l + float64(g.rng.IntN(int(h-l)+1))
}

// corrupt pushes one attribute above its maximum.
func (g *generator) corrupt(b breakdown.Breakdown) {
	for _, a := range g.rubric.Attributes {
		if _, ok := b[a.ID]; ok {
			_, hi := a.Bounds()
			b[a.ID] = breakdown.Float(hi + 1)
			return
		}
	}
}
