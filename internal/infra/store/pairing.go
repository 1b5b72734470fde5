package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// PairingTTL is how long a pairing code stays redeemable.
const PairingTTL = 5 * time.Minute

// codeAlphabet avoids lookalike characters for codes read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newPairingCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate pairing code")
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// CreatePairingCode issues a short code for the client id, replacing
// any previous incomplete code for the same client.
func (s *Store) CreatePairingCode(ctx context.Context, clientID string) (string, error) {
	code, err := newPairingCode()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pairing_codes WHERE client_id = ? AND completed = 0`, clientID); err != nil {
		return "", errors.Wrap(err, "clear stale pairing codes")
	}
	expires := time.Now().UTC().Add(PairingTTL).Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pairing_codes (code, client_id, created_at, expires_at, completed)
		VALUES (?, ?, ?, ?, 0)`,
		code, clientID, now(), expires); err != nil {
		return "", errors.Wrap(err, "insert pairing code")
	}
	return code, nil
}

// CompletePairing redeems a code for a chat user: the user row is
// created if needed and the code becomes a completed ticket carrying
// the issued auth token. Expired or unknown codes return false.
func (s *Store) CompletePairing(ctx context.Context, code, externalID, displayName string) (bool, error) {
	var expiresAt string
	var completed int
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at, completed FROM pairing_codes WHERE code = ?`, code).
		Scan(&expiresAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query pairing code")
	}
	if completed == 1 {
		return false, nil
	}
	exp, err := parseTime(expiresAt)
	if err != nil || time.Now().UTC().After(exp) {
		return false, nil
	}

	user, err := s.CreateUser(ctx, externalID, displayName)
	if err != nil {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE pairing_codes SET completed = 1, external_id = ?, auth_token = ?
		WHERE code = ?`,
		externalID, user.AuthToken, code); err != nil {
		return false, errors.Wrap(err, "complete pairing code")
	}
	return true, nil
}

// PairingStatus reports whether the client id has a completed pairing
// and, when it does, the issued auth token.
func (s *Store) PairingStatus(ctx context.Context, clientID string) (paired bool, authToken string, err error) {
	var token sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT auth_token FROM pairing_codes
		WHERE client_id = ? AND completed = 1
		ORDER BY created_at DESC LIMIT 1`, clientID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", errors.Wrap(err, "query pairing status")
	}
	return token.Valid, token.String, nil
}
