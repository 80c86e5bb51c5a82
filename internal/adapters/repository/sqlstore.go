package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/okian/scoreline/internal/domain/breakdown"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// Driver selects the SQL backend.
type Driver string

// Supported drivers.
const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQLStore keeps contest documents in SQLite or Postgres.
type SQLStore struct {
	settings

	db     *sql.DB
	driver Driver
}

// Open returns the Store for driver. The memory driver ignores dsn.
func Open(ctx context.Context, driver Driver, dsn string, opts ...Option) (Store, error) {
	if driver == DriverMemory || driver == "" {
		return NewMemoryStore(opts...), nil
	}
	return OpenSQL(ctx, driver, dsn, opts...)
}

// OpenSQL connects to the database, tunes the pool and ensures the schema.
func OpenSQL(ctx context.Context, driver Driver, dsn string, opts ...Option) (*SQLStore, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "file:scoreline.db?mode=rwc"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/scoreline?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}

	if driver == DriverSQLite {
		for _, p := range sqlitePragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("repository: sqlite pragma %q: %w", p, err)
			}
		}
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: ensure schema: %w", err)
		}
	}

	s := &SQLStore{settings: defaultSettings(), db: db, driver: driver}
	s.apply(opts)
	return s, nil
}

// tunePool keeps SQLite to a single connection since it allows one writer.
func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

// q rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RunTransaction implements Store.
func (s *SQLStore) RunTransaction(ctx context.Context, contestID string, fn TxFunc) error {
	start := time.Now()
	defer func() {
		metrics.RecordStorageLatency("transaction", float64(time.Since(start).Milliseconds()))
	}()

	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
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

func (s *SQLStore) attempt(ctx context.Context, contestID string, fn TxFunc) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	var version int64
	row := sqlTx.QueryRowContext(ctx, s.q(`SELECT version FROM contests WHERE id = ?`), contestID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
		}
		return fmt.Errorf("repository: read version: %w", err)
	}

	tx := newStagedTx(
		s.clock(),
		func(ctx context.Context, entryID string) (model.Entry, error) {
			return s.loadEntry(ctx, sqlTx, contestID, entryID)
		},
		func(ctx context.Context) ([]model.ScoreEntry, error) {
			return s.loadScores(ctx, sqlTx, contestID)
		},
	)
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.dirty() {
		if err := s.commitStaged(ctx, sqlTx, contestID, version, tx); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) commitStaged(ctx context.Context, sqlTx *sql.Tx, contestID string, version int64, tx *stagedTx) error {
	res, err := sqlTx.ExecContext(ctx,
		s.q(`UPDATE contests SET version = version + 1 WHERE id = ? AND version = ?`),
		contestID, version)
	if err != nil {
		return fmt.Errorf("repository: bump version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("repository: bump version: %w", err)
	} else if n == 0 {
		return ErrConflict
	}

	if tx.scoresSet {
		raw, err := json.Marshal(tx.scores)
		if err != nil {
			return fmt.Errorf("repository: encode scores: %w", err)
		}
		if _, err := sqlTx.ExecContext(ctx, s.q(`UPDATE contests SET scores = ? WHERE id = ?`), string(raw), contestID); err != nil {
			return fmt.Errorf("repository: write scores: %w", err)
		}
	}

	for _, e := range tx.stagedEntries() {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("repository: encode entry %s: %w", e.ID, err)
		}
		res, err := sqlTx.ExecContext(ctx,
			s.q(`UPDATE entries SET doc = ? WHERE contest_id = ? AND id = ?`),
			string(raw), contestID, e.ID)
		if err != nil {
			return fmt.Errorf("repository: write entry %s: %w", e.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// Deleted after we read it.
			return ErrConflict
		}
	}
	return nil
}

func (s *SQLStore) loadEntry(ctx context.Context, q queryer, contestID, entryID string) (model.Entry, error) {
	var raw string
	row := q.QueryRowContext(ctx, s.q(`SELECT doc FROM entries WHERE contest_id = ? AND id = ?`), contestID, entryID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Entry{}, fmt.Errorf("%w: %s", model.ErrEntryNotFound, entryID)
		}
		return model.Entry{}, fmt.Errorf("repository: read entry %s: %w", entryID, err)
	}
	var e model.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return model.Entry{}, fmt.Errorf("repository: decode entry %s: %w", entryID, err)
	}
	if e.ScoreByUser == nil {
		e.ScoreByUser = map[string]breakdown.Breakdown{}
	}
	if e.ScoreTotals == nil {
		e.ScoreTotals = breakdown.Breakdown{}
	}
	return e, nil
}

func (s *SQLStore) loadScores(ctx context.Context, q queryer, contestID string) ([]model.ScoreEntry, error) {
	var raw string
	row := q.QueryRowContext(ctx, s.q(`SELECT scores FROM contests WHERE id = ?`), contestID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
		}
		return nil, fmt.Errorf("repository: read scores: %w", err)
	}
	scores := []model.ScoreEntry{}
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("repository: decode scores: %w", err)
	}
	return scores, nil
}

// Contest implements Store.
func (s *SQLStore) Contest(ctx context.Context, contestID string) (model.Contest, error) {
	var raw string
	row := s.db.QueryRowContext(ctx, s.q(`SELECT doc FROM contests WHERE id = ?`), contestID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
		}
		return model.Contest{}, fmt.Errorf("repository: read contest: %w", err)
	}
	var c model.Contest
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return model.Contest{}, fmt.Errorf("repository: decode contest: %w", err)
	}
	return c, nil
}

// Entry implements Store.
func (s *SQLStore) Entry(ctx context.Context, contestID, entryID string) (model.Entry, error) {
	if _, err := s.Contest(ctx, contestID); err != nil {
		return model.Entry{}, err
	}
	return s.loadEntry(ctx, s.db, contestID, entryID)
}

// Scores implements Store.
func (s *SQLStore) Scores(ctx context.Context, contestID string) ([]model.ScoreEntry, error) {
	return s.loadScores(ctx, s.db, contestID)
}

// CreateContest implements Store.
func (s *SQLStore) CreateContest(ctx context.Context, c model.Contest) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("repository: encode contest: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM contests WHERE id = ?`), c.ID).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("contest %s: %w", c.ID, ErrAlreadyExists)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("repository: check contest: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO contests (id, doc, scores, version) VALUES (?, ?, '[]', 0)`),
			c.ID, string(raw))
		if err != nil {
			return fmt.Errorf("repository: insert contest: %w", err)
		}
		return nil
	})
}

// CreateEntry implements Store.
func (s *SQLStore) CreateEntry(ctx context.Context, e model.Entry) error {
	fresh := model.NewEntry(e.ContestID, e.ID, e.Name, e.CreatedAt)
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = s.clock()
	}
	raw, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("repository: encode entry: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpVersion(ctx, tx, e.ContestID); err != nil {
			return err
		}
		var one int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM entries WHERE contest_id = ? AND id = ?`), e.ContestID, e.ID).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("entry %s: %w", e.ID, ErrAlreadyExists)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("repository: check entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO entries (contest_id, id, doc) VALUES (?, ?, ?)`),
			e.ContestID, e.ID, string(raw)); err != nil {
			return fmt.Errorf("repository: insert entry: %w", err)
		}
		return nil
	})
}

// DeleteEntry implements Store.
func (s *SQLStore) DeleteEntry(ctx context.Context, contestID, entryID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpVersion(ctx, tx, contestID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM entries WHERE contest_id = ? AND id = ?`), contestID, entryID)
		if err != nil {
			return fmt.Errorf("repository: delete entry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", model.ErrEntryNotFound, entryID)
		}
		scores, err := s.loadScores(ctx, tx, contestID)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(withoutEntry(scores, entryID))
		if err != nil {
			return fmt.Errorf("repository: encode scores: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE contests SET scores = ? WHERE id = ?`), string(raw), contestID); err != nil {
			return fmt.Errorf("repository: write scores: %w", err)
		}
		return nil
	})
}

// bumpVersion increments the contest version so in-flight transactions on
// the contest observe a conflict.
func (s *SQLStore) bumpVersion(ctx context.Context, tx *sql.Tx, contestID string) error {
	res, err := tx.ExecContext(ctx, s.q(`UPDATE contests SET version = version + 1 WHERE id = ?`), contestID)
	if err != nil {
		return fmt.Errorf("repository: bump version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	return nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("repository: commit: %w", e)
		}
	}()
	err = fn(tx)
	return
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
