package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
)

// UpsertSong stores song metadata under the non-empty merge rule: a
// non-empty incoming field overwrites, an empty one never clears.
func (s *Store) UpsertSong(ctx context.Context, meta song.Metadata) error {
	return s.upsertSong(ctx, s.db, meta)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertSong(ctx context.Context, db execer, meta song.Metadata) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO songs (chart_id, title, artist, album, charter, length_ms, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chart_id) DO UPDATE SET
			title = COALESCE(NULLIF(excluded.title, ''), songs.title),
			artist = COALESCE(NULLIF(excluded.artist, ''), songs.artist),
			album = COALESCE(NULLIF(excluded.album, ''), songs.album),
			charter = COALESCE(NULLIF(excluded.charter, ''), songs.charter),
			length_ms = CASE WHEN excluded.length_ms > 0 THEN excluded.length_ms ELSE songs.length_ms END`,
		string(meta.ChartID), meta.Title, meta.Artist, meta.Album, meta.Charter, meta.LengthMS, now())
	return errors.Wrap(err, "upsert song")
}

// Song returns the stored metadata for a chart id.
func (s *Store) Song(ctx context.Context, id score.ChartID) (*song.Metadata, error) {
	var meta song.Metadata
	var chartID string
	err := s.db.QueryRowContext(ctx, `
		SELECT chart_id, title, artist, album, charter, length_ms
		FROM songs WHERE chart_id = ?`, string(id)).
		Scan(&chartID, &meta.Title, &meta.Artist, &meta.Album, &meta.Charter, &meta.LengthMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query song")
	}
	meta.ChartID = score.ChartID(chartID)
	return &meta, nil
}

// UnresolvedChartIDs lists chart ids this user has scores for but no
// stored song title. The client resolves them from its local caches.
func (s *Store) UnresolvedChartIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT sc.chart_id
		FROM scores sc
		LEFT JOIN songs so ON sc.chart_id = so.chart_id
		WHERE sc.user_id = ? AND (so.chart_id IS NULL OR so.title = '')
		ORDER BY sc.chart_id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query unresolved chart ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan chart id")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "iterate chart ids")
}

// ResolveSongs applies a batch of client-resolved metadata, returning
// how many rows gained a value.
func (s *Store) ResolveSongs(ctx context.Context, metas []song.Metadata) (int, error) {
	updated := 0
	for _, meta := range metas {
		if meta.ChartID == "" || (meta.Title == "" && meta.Artist == "" && meta.Charter == "") {
			continue
		}
		if err := s.UpsertSong(ctx, meta); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
