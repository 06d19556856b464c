package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite handle shared by the repository
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	return open(dsn)
}

// OpenInMemory opens a private in-memory database, used by tests
func OpenInMemory() (*DB, error) {
	return open("file::memory:?_foreign_keys=on")
}

func open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers and keeps an in-memory database alive
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	subdirectory  TEXT NOT NULL DEFAULT '',
	source_path   TEXT NOT NULL,
	file_size     INTEGER NOT NULL DEFAULT 0,
	resolution    TEXT,
	status        TEXT NOT NULL DEFAULT 'NEW',
	progress      INTEGER NOT NULL DEFAULT 0,
	worker_id     TEXT,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	started_at    TEXT,
	completed_at  TEXT,
	UNIQUE (filename, subdirectory)
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_single_active ON jobs(status) WHERE status = 'IN_PROGRESS';

CREATE TABLE IF NOT EXISTS quality_tasks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	quality       TEXT NOT NULL,
	position      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	progress      INTEGER NOT NULL DEFAULT 0,
	output_path   TEXT,
	segment_count INTEGER NOT NULL DEFAULT 0,
	duration      REAL NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	completed_at  TEXT,
	UNIQUE (job_id, quality)
);
CREATE INDEX IF NOT EXISTS idx_quality_tasks_job ON quality_tasks(job_id, position);

CREATE TABLE IF NOT EXISTS queue_entries (
	job_id     TEXT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_position ON queue_entries(position);
`

func (d *DB) migrate() error {
	_, err := d.db.Exec(schema)
	return err
}
