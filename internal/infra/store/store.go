// Package store is the server's relational persistence layer: users,
// scores, songs, pairing codes, record breaks, chart metadata and bot
// metadata in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store wraps the database handle. All mutating operations are
// transactional; the database is the single source of truth.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and runs any
// pending schema migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// migrations run in order; each entry is guarded by schema_version so
// restarts are idempotent.
var migrations = []string{
	// v1: base schema.
	`
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		auth_token TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL,
		last_seen TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		chart_id TEXT NOT NULL,
		instrument INTEGER NOT NULL,
		difficulty INTEGER NOT NULL,
		score INTEGER NOT NULL,
		completion_percent REAL NOT NULL DEFAULT 0,
		stars INTEGER NOT NULL DEFAULT 0,
		submitted_at TEXT NOT NULL,
		UNIQUE(chart_id, instrument, difficulty, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_scores_fingerprint ON scores(chart_id, instrument, difficulty);
	CREATE INDEX IF NOT EXISTS idx_scores_user ON scores(user_id);
	CREATE TABLE IF NOT EXISTS songs (
		chart_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		charter TEXT NOT NULL DEFAULT '',
		length_ms INTEGER NOT NULL DEFAULT 0,
		first_seen TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_songs_chart ON songs(chart_id);
	CREATE TABLE IF NOT EXISTS pairing_codes (
		code TEXT UNIQUE NOT NULL,
		client_id TEXT NOT NULL,
		external_id TEXT,
		auth_token TEXT,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_pairing_code ON pairing_codes(code);
	CREATE TABLE IF NOT EXISTS record_breaks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		chart_id TEXT NOT NULL,
		instrument INTEGER NOT NULL,
		difficulty INTEGER NOT NULL,
		new_score INTEGER NOT NULL,
		previous_score INTEGER,
		previous_holder_id INTEGER REFERENCES users(id),
		broken_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bot_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`,
	// v2: full-combo detection and parsed chart metadata.
	`
	ALTER TABLE scores ADD COLUMN is_full_combo INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE scores ADD COLUMN notes_total INTEGER;
	CREATE TABLE IF NOT EXISTS chart_metadata (
		chart_id TEXT NOT NULL,
		instrument INTEGER NOT NULL,
		difficulty INTEGER NOT NULL,
		total_notes INTEGER NOT NULL,
		chord_count INTEGER NOT NULL DEFAULT 0,
		tap_count INTEGER NOT NULL DEFAULT 0,
		open_note_count INTEGER NOT NULL DEFAULT 0,
		star_power_phrases INTEGER NOT NULL DEFAULT 0,
		song_length_ms INTEGER NOT NULL DEFAULT 0,
		note_density REAL NOT NULL DEFAULT 0,
		song_name TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		charter TEXT NOT NULL DEFAULT '',
		genre TEXT NOT NULL DEFAULT '',
		chart_file_path TEXT NOT NULL DEFAULT '',
		parsed_at TEXT NOT NULL,
		UNIQUE(chart_id, instrument, difficulty)
	);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "create schema_version")
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return errors.Wrap(err, "read schema version")
	}

	for v := int(current.Int64); v < len(migrations); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin migration")
		}
		for _, stmt := range splitStatements(migrations[v]) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "apply migration %d", v+1)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version(version, applied_at) VALUES (?, ?)`,
			v+1, now()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record migration %d", v+1)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", v+1)
		}
		zlog.Info().Int("version", v+1).Msg("Applied schema migration")
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// timeLayout is fixed-width so stored timestamps order correctly under
// the text comparisons the queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// now renders the current UTC instant in the storage timestamp format.
func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Backup copies the database into dir with a timestamped name and
// prunes old copies beyond keep.
func (s *Store) Backup(dir string, keep int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create backup directory")
	}
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(s.path), time.Now().Format("20060102_150405"))
	src, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, "open database for backup")
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return errors.Wrap(err, "create backup file")
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrap(err, "copy database")
	}

	pattern := filepath.Base(s.path) + ".*.bak"
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(matches) <= keep {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		os.Remove(old)
	}
	return nil
}
