// Package chartfile parses the game's chart files (.chart text format
// and .mid/.midi standard MIDI) into the chart aggregate, locates chart
// files by chart id, and reads adjacent song.ini metadata.
package chartfile

import (
	"path/filepath"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/domain/chart"
)

// Parse parses a chart file, auto-detecting the format from its
// extension. Returns nil on any structural error; partial data is never
// surfaced. Errors are logged at warning, not returned.
func Parse(path string) *chart.Data {
	var (
		data *chart.Data
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".chart":
		data, err = ParseChart(path)
	case ".mid", ".midi":
		data, err = ParseMIDI(path)
	default:
		zlog.Warn().Str("path", path).Msg("Unsupported chart format")
		return nil
	}
	if err != nil {
		zlog.Warn().Err(err).Str("path", path).Msg("Failed to parse chart file")
		return nil
	}

	// song.ini beats in-file metadata where it has values.
	if ini := ReadSongINI(path); ini != nil {
		ini.applyTo(data)
	}
	if data.Artist == "" {
		data.Artist = artistFromFolder(path)
	}
	return data
}

// TrackStats is the per-(instrument,difficulty) summary handed to the
// metadata resolver and the submission payload.
type TrackStats struct {
	TotalNotes int
	NPS        float64
}

// StatsFor parses the chart at path and extracts the stats for one
// (instrument, difficulty). Returns nil when the chart cannot be parsed
// or has no such track.
func StatsFor(path string, instrument, difficulty int) *TrackStats {
	data := Parse(path)
	if data == nil {
		return nil
	}
	key := chart.TrackKey{Instrument: instrument, Difficulty: difficulty}
	t, ok := data.Tracks[key]
	if !ok {
		zlog.Debug().Str("path", path).Int("instrument", instrument).Int("difficulty", difficulty).
			Msg("No track data in chart")
		return nil
	}
	return &TrackStats{
		TotalNotes: t.TotalPlayableNotes,
		NPS:        data.NoteDensity(key),
	}
}
