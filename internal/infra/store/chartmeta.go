package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// ChartMetadata is one parsed (chart, instrument, difficulty) summary.
type ChartMetadata struct {
	ChartID          score.ChartID
	Instrument       int
	Difficulty       int
	TotalNotes       int
	ChordCount       int
	TapCount         int
	OpenNoteCount    int
	StarPowerPhrases int
	SongLengthMS     int
	NoteDensity      float64
	SongName         string
	Artist           string
	Charter          string
	Genre            string
	ChartFilePath    string
}

// UpsertChartMetadata stores one parsed chart summary, replacing any
// previous parse of the same fingerprint.
func (s *Store) UpsertChartMetadata(ctx context.Context, meta ChartMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chart_metadata (chart_id, instrument, difficulty, total_notes,
			chord_count, tap_count, open_note_count, star_power_phrases,
			song_length_ms, note_density, song_name, artist, charter, genre,
			chart_file_path, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chart_id, instrument, difficulty) DO UPDATE SET
			total_notes = excluded.total_notes,
			chord_count = excluded.chord_count,
			tap_count = excluded.tap_count,
			open_note_count = excluded.open_note_count,
			star_power_phrases = excluded.star_power_phrases,
			song_length_ms = excluded.song_length_ms,
			note_density = excluded.note_density,
			song_name = excluded.song_name,
			artist = excluded.artist,
			charter = excluded.charter,
			genre = excluded.genre,
			chart_file_path = excluded.chart_file_path,
			parsed_at = excluded.parsed_at`,
		string(meta.ChartID), meta.Instrument, meta.Difficulty, meta.TotalNotes,
		meta.ChordCount, meta.TapCount, meta.OpenNoteCount, meta.StarPowerPhrases,
		meta.SongLengthMS, meta.NoteDensity, meta.SongName, meta.Artist, meta.Charter,
		meta.Genre, meta.ChartFilePath, now())
	return errors.Wrap(err, "upsert chart metadata")
}

// HardestCharts lists charts by note density within an NPS band,
// filtered to charts with at least minNotes playable notes.
func (s *Store) HardestCharts(ctx context.Context, minNotes int, minNPS, maxNPS float64, limit int) ([]ChartMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chart_id, instrument, difficulty, total_notes, note_density,
		       song_length_ms, song_name, artist, charter
		FROM chart_metadata
		WHERE total_notes >= ? AND note_density >= ? AND note_density <= ?
		ORDER BY note_density DESC LIMIT ?`,
		minNotes, minNPS, maxNPS, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query hardest charts")
	}
	defer rows.Close()

	var out []ChartMetadata
	for rows.Next() {
		var m ChartMetadata
		var id string
		if err := rows.Scan(&id, &m.Instrument, &m.Difficulty, &m.TotalNotes,
			&m.NoteDensity, &m.SongLengthMS, &m.SongName, &m.Artist, &m.Charter); err != nil {
			return nil, errors.Wrap(err, "scan chart metadata")
		}
		m.ChartID = score.ChartID(id)
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate chart metadata")
}
