// Package model contains the documents the score engine reads and writes.
package model

import (
	"time"

	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/lock"
	"github.com/okian/scoreline/internal/domain/rubric"
)

// Contest owns entries, an optional rubric and the flat list of score records.
type Contest struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Config    *rubric.ContestConfig `json:"config,omitempty"` // nil falls back to the default rubric
	CreatedAt time.Time             `json:"createdAt"`
}

// Entry is one judged item. Its score fields are written only through the
// locked update path.
type Entry struct {
	ID          string                         `json:"id"`
	ContestID   string                         `json:"contestId"`
	Name        string                         `json:"name"`
	ScoreByUser map[string]breakdown.Breakdown `json:"scoreByUser"`
	ScoreTotals breakdown.Breakdown            `json:"scoreTotals"`
	ScoreLock   *lock.State                    `json:"scoreLock,omitempty"`
	CreatedAt   time.Time                      `json:"createdAt"`
}

// NewEntry returns an entry with empty score fields.
func NewEntry(contestID, id, name string, now time.Time) Entry {
	return Entry{
		ID:          id,
		ContestID:   contestID,
		Name:        name,
		ScoreByUser: map[string]breakdown.Breakdown{},
		ScoreTotals: breakdown.Breakdown{},
		CreatedAt:   now,
	}
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	out := e
	out.ScoreByUser = make(map[string]breakdown.Breakdown, len(e.ScoreByUser))
	for judge, b := range e.ScoreByUser {
		out.ScoreByUser[judge] = b.Clone()
	}
	out.ScoreTotals = e.ScoreTotals.Clone()
	if e.ScoreLock != nil {
		l := *e.ScoreLock
		out.ScoreLock = &l
	}
	return out
}

// ScoreEntry is one judge's score record for one entry.
type ScoreEntry struct {
	ID            string              `json:"id"`
	EntryID       string              `json:"entryId"`
	JudgeID       string              `json:"judgeId"`
	Breakdown     breakdown.Breakdown `json:"breakdown"`
	NotApplicable []string            `json:"notApplicable,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy of s.
func (s ScoreEntry) Clone() ScoreEntry {
	out := s
	out.Breakdown = s.Breakdown.Clone()
	if s.NotApplicable != nil {
		out.NotApplicable = append([]string(nil), s.NotApplicable...)
	}
	return out
}

// CloneScores deep-copies a score list.
func CloneScores(scores []ScoreEntry) []ScoreEntry {
	if scores == nil {
		return nil
	}
	out := make([]ScoreEntry, len(scores))
	for i, s := range scores {
		out[i] = s.Clone()
	}
	return out
}

// FindScore returns the index of the record with id, or -1.
func FindScore(scores []ScoreEntry, id string) int {
	for i := range scores {
		if scores[i].ID == id {
			return i
		}
	}
	return -1
}

// FindJudgeScore returns the index of judgeID's record for entryID, or -1.
func FindJudgeScore(scores []ScoreEntry, entryID, judgeID string) int {
	for i := range scores {
		if scores[i].EntryID == entryID && scores[i].JudgeID == judgeID {
			return i
		}
	}
	return -1
}
