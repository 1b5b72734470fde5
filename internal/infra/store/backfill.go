package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// RetroFC is one full combo discovered by the historical scan.
type RetroFC struct {
	User        User
	ChartID     score.ChartID
	Instrument  int
	Difficulty  int
	Score       int
	SongTitle   string
	SongArtist  string
	SongCharter string
	SubmittedAt string

	IsFirstFC       bool
	IsFCRecordBreak bool
	PreviousHolder  *string
	PreviousScore   *int
}

// BackfillResult summarizes one historical FC scan.
type BackfillResult struct {
	Scanned  int
	FCsFound int
	// Events is populated when collectEvents is requested; it feeds the
	// retroactive announcement path.
	Events []RetroFC
}

// ScanHistoricalFCs cross-references stored scores against parsed
// chart metadata and flips is_full_combo on rows that qualify but were
// missed at submission time. Idempotent: a second run finds nothing.
func (s *Store) ScanHistoricalFCs(ctx context.Context, collectEvents bool) (*BackfillResult, error) {
	zlog.Info().Msg("Scanning for historical full combos")

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.chart_id, s.instrument, s.difficulty,
		       s.score, s.completion_percent, s.notes_total, s.is_full_combo, s.submitted_at,
		       u.external_id, u.display_name,
		       cm.total_notes,
		       COALESCE(NULLIF(so.title, ''), '[' || SUBSTR(s.chart_id, 1, 8) || ']'),
		       COALESCE(so.artist, ''), COALESCE(so.charter, '')
		FROM scores s
		JOIN users u ON s.user_id = u.id
		JOIN chart_metadata cm ON s.chart_id = cm.chart_id
		                      AND s.instrument = cm.instrument
		                      AND s.difficulty = cm.difficulty
		LEFT JOIN songs so ON s.chart_id = so.chart_id
		WHERE s.notes_total IS NOT NULL AND s.notes_total > 0`)
	if err != nil {
		return nil, errors.Wrap(err, "query backfill candidates")
	}

	type candidate struct {
		rowID      int64
		fc         RetroFC
		notesTotal int
		chartNotes int
		completion float64
		markedFC   bool
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var chartID string
		var fcFlag int
		if err := rows.Scan(&c.rowID, &c.fc.User.ID, &chartID, &c.fc.Instrument, &c.fc.Difficulty,
			&c.fc.Score, &c.completion, &c.notesTotal, &fcFlag, &c.fc.SubmittedAt,
			&c.fc.User.ExternalID, &c.fc.User.DisplayName,
			&c.chartNotes, &c.fc.SongTitle, &c.fc.SongArtist, &c.fc.SongCharter); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan backfill candidate")
		}
		c.fc.ChartID = score.ChartID(chartID)
		c.markedFC = fcFlag == 1
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate backfill candidates")
	}

	result := &BackfillResult{}
	for _, c := range candidates {
		result.Scanned++

		isFC := c.notesTotal == c.chartNotes && c.completion >= fullComboCompletionFloor
		if !isFC || c.markedFC {
			continue
		}
		result.FCsFound++

		if _, err := s.db.ExecContext(ctx,
			`UPDATE scores SET is_full_combo = 1 WHERE id = ?`, c.rowID); err != nil {
			return nil, errors.Wrap(err, "mark full combo")
		}

		// First FC: no earlier FC on the same fingerprint.
		var earlierFCs int
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM scores
			WHERE chart_id = ? AND instrument = ? AND difficulty = ?
			  AND is_full_combo = 1 AND submitted_at < ?`,
			string(c.fc.ChartID), c.fc.Instrument, c.fc.Difficulty, c.fc.SubmittedAt).
			Scan(&earlierFCs); err != nil {
			return nil, errors.Wrap(err, "count earlier full combos")
		}
		c.fc.IsFirstFC = earlierFCs == 0

		// FC record break: an earlier, lower score existed at the time.
		var prevScore int
		var prevHolder string
		err := s.db.QueryRowContext(ctx, `
			SELECT s2.score, u2.display_name
			FROM scores s2 JOIN users u2 ON s2.user_id = u2.id
			WHERE s2.chart_id = ? AND s2.instrument = ? AND s2.difficulty = ?
			  AND s2.submitted_at < ? AND s2.score < ?
			ORDER BY s2.score DESC LIMIT 1`,
			string(c.fc.ChartID), c.fc.Instrument, c.fc.Difficulty, c.fc.SubmittedAt, c.fc.Score).
			Scan(&prevScore, &prevHolder)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, errors.Wrap(err, "query earlier record")
		default:
			c.fc.IsFCRecordBreak = true
			c.fc.PreviousScore = &prevScore
			c.fc.PreviousHolder = &prevHolder
		}

		if collectEvents {
			result.Events = append(result.Events, c.fc)
		}
	}

	zlog.Info().Int("scanned", result.Scanned).Int("found", result.FCsFound).
		Msg("Historical full-combo scan complete")
	return result, nil
}
