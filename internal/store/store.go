// Package store handles SQLite persistence of sessions, amplitude samples and
// clip recordings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/schema"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps SQLite access for monitoring data.
type Store struct {
	db        *sql.DB
	validator *schema.Validator
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One writer; keeps pragmas and transactions on a single connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, validator: schema.New()}
	if err := store.migrate(); err != nil {
		closeLogged(db, "database")
		return nil, err
	}
	log.Info().Str("path", path).Msg("Store opened")
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			snore_count INTEGER NOT NULL DEFAULT 0,
			max_amplitude REAL NOT NULL DEFAULT 0,
			date_timestamp INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS amplitude_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp_ms INTEGER NOT NULL,
			amplitude REAL NOT NULL,
			is_snore INTEGER NOT NULL,
			UNIQUE (session_id, timestamp_ms)
		);`,
		`CREATE TABLE IF NOT EXISTS audio_recordings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp_ms INTEGER NOT NULL,
			file_path TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			trigger_amplitude REAL NOT NULL,
			UNIQUE (session_id, timestamp_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date_timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_amplitude_samples_session ON amplitude_samples(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_audio_recordings_session ON audio_recordings(session_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func closeRows(rows *sql.Rows) {
	closeLogged(rows, "rows")
}

// closeLogged closes c on a path that already has an error to return.
func closeLogged(c io.Closer, what string) {
	if cerr := c.Close(); cerr != nil {
		log.Warn().Err(cerr).Str("resource", what).Msg("Close failed")
	}
}

func rollback(tx *sql.Tx) {
	if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
		log.Warn().Err(rerr).Msg("Rollback failed")
	}
}
