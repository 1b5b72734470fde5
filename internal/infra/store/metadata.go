package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// GetMetadata reads one bot bookkeeping value; ok is false when the
// key has never been set.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "query bot metadata")
	}
	return value, true, nil
}

// SetMetadata upserts one bot bookkeeping value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now())
	return errors.Wrap(err, "set bot metadata")
}
