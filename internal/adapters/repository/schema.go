package repository

// Both backends share one layout: one row per contest holding its rubric and
// flat score list as JSON, and one row per entry holding the entry document.
// contests.version is bumped by every committed write.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contests (
  id TEXT PRIMARY KEY,
  doc TEXT NOT NULL,
  scores TEXT NOT NULL DEFAULT '[]',
  version BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS entries (
  contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
  id TEXT NOT NULL,
  doc TEXT NOT NULL,
  PRIMARY KEY (contest_id, id)
)`,
}

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON;",
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA busy_timeout = 5000;",
}
