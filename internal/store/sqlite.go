package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/gunsub/internal/model"
)

// SQLiteStore keeps the cursor and the run history in a local SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

var (
	_ Store       = (*SQLiteStore)(nil)
	_ RunRecorder = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every :memory: connection is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReadCursor returns the stored cursor, if any.
func (s *SQLiteStore) ReadCursor(ctx context.Context) (time.Time, bool, error) {
	var nanos int64
	err := s.db.GetContext(ctx, &nanos, "SELECT since_unix_nano FROM cursor WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading cursor: %w", err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// WriteCursor replaces the stored cursor.
func (s *SQLiteStore) WriteCursor(ctx context.Context, cursor time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursor (id, since_unix_nano, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			since_unix_nano = excluded.since_unix_nano,
			updated_at = excluded.updated_at`,
		cursor.UnixNano(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}
	return nil
}

// RecordRun appends run to the history. A run without an ID gets a new
// UUID.
func (s *SQLiteStore) RecordRun(ctx context.Context, run model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	var since *time.Time
	if run.Since != nil {
		utc := run.Since.UTC()
		since = &utc
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, since,
			pages, unsubscribed, malformed, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), since,
		run.Pages, run.Unsubscribed, run.Malformed, run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	// FailedOnly keeps runs that ended with an error.
	FailedOnly bool

	// Limit caps the number of runs; zero means no limit.
	Limit int
}

// ListRuns returns recorded runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	builder := sq.Select(
		"id", "started_at", "finished_at", "since",
		"pages", "unsubscribed", "malformed", "error",
	).From("runs").OrderBy("started_at DESC", "rowid DESC")

	if filter.FailedOnly {
		builder = builder.Where(sq.NotEq{"error": ""})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building runs query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// scanRun scans a run row from a sqlx.Rows result set.
func scanRun(rows *sqlx.Rows) (model.Run, error) {
	var (
		run   model.Run
		since *time.Time
	)

	err := rows.Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &since,
		&run.Pages, &run.Unsubscribed, &run.Malformed, &run.Error,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("scanning run row: %w", err)
	}

	run.Since = since
	return run, nil
}
