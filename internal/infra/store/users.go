package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// User is one paired player.
type User struct {
	ID          int64
	ExternalID  string
	DisplayName string
	AuthToken   string
	CreatedAt   string
	LastSeen    string
}

// ErrUnauthorized is returned when an auth token resolves to no user.
var ErrUnauthorized = errors.New("store: invalid auth token")

// CreateUser registers a chat user, returning the existing row when
// the external id is already known.
func (s *Store) CreateUser(ctx context.Context, externalID, displayName string) (*User, error) {
	if u, err := s.UserByExternalID(ctx, externalID); err == nil {
		return u, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	token := uuid.NewString()
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (external_id, display_name, auth_token, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)`,
		externalID, displayName, token, ts, ts)
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "user id")
	}
	return &User{ID: id, ExternalID: externalID, DisplayName: displayName, AuthToken: token, CreatedAt: ts, LastSeen: ts}, nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.AuthToken, &u.CreatedAt, &u.LastSeen); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByExternalID looks a user up by chat-user id.
func (s *Store) UserByExternalID(ctx context.Context, externalID string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, external_id, display_name, auth_token, created_at, last_seen
		FROM users WHERE external_id = ?`, externalID))
}

// UserByAuthToken resolves an auth token, returning ErrUnauthorized
// when no user holds it.
func (s *Store) UserByAuthToken(ctx context.Context, token string) (*User, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, external_id, display_name, auth_token, created_at, last_seen
		FROM users WHERE auth_token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "query user by token")
	}
	return u, nil
}

// TouchLastSeen updates the user's last_seen stamp.
func (s *Store) TouchLastSeen(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, now(), userID)
	return errors.Wrap(err, "update last_seen")
}
