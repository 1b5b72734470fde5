package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
)

// fullComboCompletionFloor is the completion percent below which a
// submission cannot be a full combo even with all notes hit.
const fullComboCompletionFloor = 99.99

// Submission is one score posted by a client.
type Submission struct {
	AuthToken         string
	ChartID           score.ChartID
	Instrument        int
	Difficulty        int
	Score             int
	CompletionPercent float64
	Stars             int

	SongTitle   string
	SongArtist  string
	SongCharter string

	// NotesHit/TotalNotesInChart drive full-combo detection. NotesTotal
	// is recorded with the row for later backfills. All optional.
	NotesHit          *int
	NotesTotal        *int
	TotalNotesInChart *int
}

// SubmitResult is the classifier's structured outcome.
type SubmitResult struct {
	User *User

	IsHighScore     bool
	IsRecordBroken  bool
	IsFirstTime     bool
	IsPersonalBest  bool
	IsFullCombo     bool
	IsFirstFC       bool
	IsFCRecordBreak bool

	// Previous server record, when one existed.
	PreviousScore    *int
	PreviousHolder   *User
	PreviousRecordAt *string

	// The submitting user's own prior score, when they had one.
	UserPreviousScore *int
	// The user's best after this submission.
	YourBestScore int
	// The server record after this submission.
	CurrentServerRecord int
}

// Category returns which announcement category the result falls into:
// exactly one of record/first/pb, or "" for none. Full combo is an
// orthogonal flag.
func (r *SubmitResult) Category() string {
	switch {
	case r.IsRecordBroken:
		return "record_break"
	case r.IsFirstTime:
		return "first_time"
	case r.IsPersonalBest:
		return "personal_best"
	default:
		return ""
	}
}

// SubmitScore atomically classifies and persists one submission.
//
// Within a single transaction: the auth token resolves the user, song
// metadata is upserted, the submission is classified against the
// current server record and the user's own row, the user's row is
// upserted (only a strictly greater score overwrites), a record-break
// event is appended when applicable, and full-combo flags are derived.
func (s *Store) SubmitScore(ctx context.Context, sub Submission) (*SubmitResult, error) {
	user, err := s.UserByAuthToken(ctx, sub.AuthToken)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin submission")
	}
	defer tx.Rollback()

	if sub.SongTitle != "" || sub.SongArtist != "" || sub.SongCharter != "" {
		if err := s.upsertSong(ctx, tx, song.Metadata{
			ChartID: sub.ChartID,
			Title:   sub.SongTitle,
			Artist:  sub.SongArtist,
			Charter: sub.SongCharter,
		}); err != nil {
			return nil, err
		}
	}

	result := &SubmitResult{User: user}

	// Full combo: every playable note hit, at effectively full completion.
	if sub.TotalNotesInChart != nil && sub.NotesHit != nil {
		result.IsFullCombo = *sub.NotesHit == *sub.TotalNotesInChart &&
			sub.CompletionPercent >= fullComboCompletionFloor
	}

	// Current server record over this fingerprint, across all users.
	var (
		recordScore  int
		recordUserID int64
		recordAt     string
		recordHolder User
		haveRecord   bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT s.score, s.user_id, s.submitted_at, u.external_id, u.display_name
		FROM scores s JOIN users u ON s.user_id = u.id
		WHERE s.chart_id = ? AND s.instrument = ? AND s.difficulty = ?
		ORDER BY s.score DESC LIMIT 1`,
		string(sub.ChartID), sub.Instrument, sub.Difficulty).
		Scan(&recordScore, &recordUserID, &recordAt, &recordHolder.ExternalID, &recordHolder.DisplayName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "query server record")
	default:
		haveRecord = true
		recordHolder.ID = recordUserID
	}

	// The user's own prior row for this fingerprint.
	var userPrev sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT score FROM scores
		WHERE chart_id = ? AND instrument = ? AND difficulty = ? AND user_id = ?`,
		string(sub.ChartID), sub.Instrument, sub.Difficulty, user.ID).Scan(&userPrev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "query user score")
	}
	if userPrev.Valid {
		v := int(userPrev.Int64)
		result.UserPreviousScore = &v
	}

	// Classification: RecordBreak, FirstTime and PersonalBest are
	// mutually exclusive; a PB that is also a record classifies as
	// a record.
	switch {
	case haveRecord && sub.Score > recordScore:
		result.IsHighScore = true
		result.IsRecordBroken = true
		result.PreviousScore = &recordScore
		result.PreviousHolder = &recordHolder
		result.PreviousRecordAt = &recordAt
	case haveRecord:
		if userPrev.Valid && sub.Score > int(userPrev.Int64) {
			result.IsPersonalBest = true
		}
	default:
		result.IsHighScore = true
		result.IsFirstTime = true
	}

	// First FC over this fingerprint, any user, before this submission.
	if result.IsFullCombo {
		var fcCount int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM scores
			WHERE chart_id = ? AND instrument = ? AND difficulty = ? AND is_full_combo = 1`,
			string(sub.ChartID), sub.Instrument, sub.Difficulty).Scan(&fcCount); err != nil {
			return nil, errors.Wrap(err, "count full combos")
		}
		result.IsFirstFC = fcCount == 0
		result.IsFCRecordBreak = result.IsRecordBroken
	}

	// Upsert the user's row: the first submission inserts it, and after
	// that only a strictly greater score overwrites the stored value.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scores (user_id, chart_id, instrument, difficulty, score,
		                    completion_percent, stars, is_full_combo, notes_total, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chart_id, instrument, difficulty, user_id) DO UPDATE SET
			score = excluded.score,
			completion_percent = excluded.completion_percent,
			stars = excluded.stars,
			is_full_combo = excluded.is_full_combo,
			notes_total = excluded.notes_total,
			submitted_at = excluded.submitted_at
		WHERE excluded.score > scores.score`,
		user.ID, string(sub.ChartID), sub.Instrument, sub.Difficulty, sub.Score,
		sub.CompletionPercent, sub.Stars, boolToInt(result.IsFullCombo), nullableInt(sub.NotesTotal), now()); err != nil {
		return nil, errors.Wrap(err, "upsert score")
	}

	if result.IsRecordBroken {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO record_breaks (user_id, chart_id, instrument, difficulty,
			                           new_score, previous_score, previous_holder_id, broken_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, string(sub.ChartID), sub.Instrument, sub.Difficulty,
			sub.Score, recordScore, recordUserID, now()); err != nil {
			return nil, errors.Wrap(err, "append record break")
		}
	}

	// Post-submission state for the response.
	if err := tx.QueryRowContext(ctx, `
		SELECT score FROM scores
		WHERE chart_id = ? AND instrument = ? AND difficulty = ? AND user_id = ?`,
		string(sub.ChartID), sub.Instrument, sub.Difficulty, user.ID).Scan(&result.YourBestScore); err != nil {
		return nil, errors.Wrap(err, "query resulting best")
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(score) FROM scores
		WHERE chart_id = ? AND instrument = ? AND difficulty = ?`,
		string(sub.ChartID), sub.Instrument, sub.Difficulty).Scan(&result.CurrentServerRecord); err != nil {
		return nil, errors.Wrap(err, "query resulting record")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, now(), user.ID); err != nil {
		return nil, errors.Wrap(err, "update last_seen")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit submission")
	}

	zlog.Info().
		Str("user", user.DisplayName).
		Int("score", sub.Score).
		Str("category", result.Category()).
		Bool("full_combo", result.IsFullCombo).
		Msg("Score submitted")
	return result, nil
}

// RecordFor returns the current record row for a fingerprint, or nil.
func (s *Store) RecordFor(ctx context.Context, id score.ChartID, instrument, difficulty int) (*User, int, error) {
	var holder User
	var value int
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.external_id, u.display_name, s.score
		FROM scores s JOIN users u ON s.user_id = u.id
		WHERE s.chart_id = ? AND s.instrument = ? AND s.difficulty = ?
		ORDER BY s.score DESC LIMIT 1`,
		string(id), instrument, difficulty).
		Scan(&holder.ID, &holder.ExternalID, &holder.DisplayName, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "query record")
	}
	return &holder, value, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
