// Package repository provides the transactional document stores the score
// engine runs on.
//
// A contest is the unit of atomicity: its entries and its flat score list are
// read and written together. Stores detect concurrent writers with a version
// check at commit and transparently re-run the transaction function on
// conflict. That storage-level retry sits beneath, and is independent of, the
// advisory entry lock.
package repository

import (
	"context"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
)

// Tx is the view of one contest document inside a transaction. Reads see a
// consistent snapshot plus the transaction's own staged writes. Writes become
// visible only when the transaction commits.
type Tx interface {
	// Now returns the store-assigned timestamp for this attempt.
	Now() time.Time
	// Entry returns an entry of the contest, or model.ErrEntryNotFound.
	Entry(ctx context.Context, entryID string) (model.Entry, error)
	// Scores returns the contest's flat score list.
	Scores(ctx context.Context) ([]model.ScoreEntry, error)
	// PutEntry stages an entry write. The entry must already exist.
	PutEntry(ctx context.Context, e model.Entry) error
	// PutScores stages a replacement of the flat score list.
	PutScores(ctx context.Context, scores []model.ScoreEntry) error
}

// TxFunc is the body of a transaction. It may be invoked more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// Store provides transactional and plain access to contest documents.
type Store interface {
	// RunTransaction runs fn against contestID and commits its writes
	// atomically. Errors returned by fn abort the transaction and are
	// returned unchanged.
	RunTransaction(ctx context.Context, contestID string, fn TxFunc) error

	// Contest returns a contest, or model.ErrContestNotFound.
	Contest(ctx context.Context, contestID string) (model.Contest, error)
	// Entry returns an entry without taking part in any transaction.
	Entry(ctx context.Context, contestID, entryID string) (model.Entry, error)
	// Scores returns the contest's flat score list.
	Scores(ctx context.Context, contestID string) ([]model.ScoreEntry, error)

	// CreateContest stores a new contest with an empty score list.
	CreateContest(ctx context.Context, c model.Contest) error
	// CreateEntry stores a new entry under its contest.
	CreateEntry(ctx context.Context, e model.Entry) error
	// DeleteEntry removes an entry and every score record that points at it.
	DeleteEntry(ctx context.Context, contestID, entryID string) error

	Close() error
}
