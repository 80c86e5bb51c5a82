package repository

import (
	"context"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
)

// stagedTx buffers writes on top of a snapshot reader. Both stores use it so
// read-your-writes behaves identically.
type stagedTx struct {
	now        time.Time
	loadEntry  func(ctx context.Context, entryID string) (model.Entry, error)
	loadScores func(ctx context.Context) ([]model.ScoreEntry, error)

	entries   map[string]model.Entry
	order     []string
	scores    []model.ScoreEntry
	scoresSet bool
}

func newStagedTx(
	now time.Time,
	loadEntry func(ctx context.Context, entryID string) (model.Entry, error),
	loadScores func(ctx context.Context) ([]model.ScoreEntry, error),
) *stagedTx {
	return &stagedTx{
		now:        now,
		loadEntry:  loadEntry,
		loadScores: loadScores,
		entries:    map[string]model.Entry{},
	}
}

func (t *stagedTx) Now() time.Time { return t.now }

func (t *stagedTx) Entry(ctx context.Context, entryID string) (model.Entry, error) {
	if e, ok := t.entries[entryID]; ok {
		return e.Clone(), nil
	}
	e, err := t.loadEntry(ctx, entryID)
	if err != nil {
		return model.Entry{}, err
	}
	return e.Clone(), nil
}

func (t *stagedTx) Scores(ctx context.Context) ([]model.ScoreEntry, error) {
	if t.scoresSet {
		return model.CloneScores(t.scores), nil
	}
	scores, err := t.loadScores(ctx)
	if err != nil {
		return nil, err
	}
	return model.CloneScores(scores), nil
}

func (t *stagedTx) PutEntry(ctx context.Context, e model.Entry) error {
	if _, staged := t.entries[e.ID]; !staged {
		if _, err := t.loadEntry(ctx, e.ID); err != nil {
			return err
		}
		t.order = append(t.order, e.ID)
	}
	t.entries[e.ID] = e.Clone()
	return nil
}

func (t *stagedTx) PutScores(_ context.Context, scores []model.ScoreEntry) error {
	t.scores = model.CloneScores(scores)
	if t.scores == nil {
		t.scores = []model.ScoreEntry{}
	}
	t.scoresSet = true
	return nil
}

func (t *stagedTx) dirty() bool {
	return t.scoresSet || len(t.entries) > 0
}

// stagedEntries returns staged entries in first-write order.
func (t *stagedTx) stagedEntries() []model.Entry {
	out := make([]model.Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id])
	}
	return out
}
