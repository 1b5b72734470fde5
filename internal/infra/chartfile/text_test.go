package chartfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goofenthol/chscore/internal/domain/chart"
	"github.com/goofenthol/chscore/internal/domain/score"
)

func writeChart(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.chart")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalChart = `[Song]
{
  Name = "Amazing Song"
  Artist = "Some Band"
  Charter = "chartguy"
  Resolution = 192
}
[SyncTrack]
{
  0 = TS 4
  0 = B 120000
}
[Events]
{
  0 = E "section Intro"
  768 = E "section Solo"
}
[ExpertSingle]
{
  100 = N 0 0
  100 = N 1 0
  100 = N 2 0
  200 = N 0 0
  300 = N 7 0
  400 = N 0 96
  400 = N 5 0
  500 = N 3 0
  500 = N 6 0
  0 = S 2 768
}
`

func TestParseChartChordCounting(t *testing.T) {
	data, err := ParseChart(writeChart(t, minimalChart))
	require.NoError(t, err)

	key := chart.TrackKey{Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyExpert)}
	track, ok := data.Tracks[key]
	require.True(t, ok)

	// Ticks with frets: 100 (3-fret chord), 200, 300 (open), 400, 500.
	assert.Equal(t, 5, track.TotalPlayableNotes)
	assert.Equal(t, 1, track.ChordCount)
	assert.Equal(t, 1, track.HopoCount)
	assert.Equal(t, 1, track.TapCount)
	assert.Equal(t, 1, track.OpenCount)
	assert.Len(t, track.StarPowerPhrases, 1)
}

func TestParseChartSpecScenario(t *testing.T) {
	// §8 S5: three stacked frets at 100 plus one note at 200.
	content := `[ExpertSingle]
{
  100 = N 0 0
  100 = N 1 0
  100 = N 2 0
  200 = N 0 0
}
`
	data, err := ParseChart(writeChart(t, content))
	require.NoError(t, err)

	track := data.Tracks[chart.TrackKey{Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyExpert)}]
	require.NotNil(t, track)
	assert.Equal(t, 2, track.TotalPlayableNotes)
	assert.Equal(t, 1, track.ChordCount)
	assert.Equal(t, 0, track.HopoCount)
	assert.Equal(t, 0, track.TapCount)
}

func TestParseChartMetadataAndSections(t *testing.T) {
	data, err := ParseChart(writeChart(t, minimalChart))
	require.NoError(t, err)

	assert.Equal(t, "Amazing Song", data.Name)
	assert.Equal(t, "Some Band", data.Artist)
	assert.Equal(t, "chartguy", data.Charter)
	assert.Equal(t, 192, data.Resolution)

	require.Len(t, data.PracticeSections, 2)
	assert.Equal(t, "Intro", data.PracticeSections[0].Name)
	assert.Equal(t, 768, data.PracticeSections[1].StartTick)

	require.Len(t, data.TimeSignatures, 1)
	assert.Equal(t, 4, data.TimeSignatures[0].Numerator)
}

func TestParseChartSongLengthAndNPS(t *testing.T) {
	// 120 BPM at 192 ticks/beat: tick 400 + 96 sustain = 496 ticks
	// = 496/192 beats = 2.583 beats = 1291 ms.
	content := `[Song]
{
  Resolution = 192
}
[SyncTrack]
{
  0 = B 120000
}
[ExpertSingle]
{
  0 = N 0 0
  200 = N 1 0
  400 = N 2 96
}
`
	data, err := ParseChart(writeChart(t, content))
	require.NoError(t, err)

	assert.InDelta(t, 1291, data.SongLengthMS, 1)

	key := chart.TrackKey{Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyExpert)}
	nps := data.NoteDensity(key)
	assert.InDelta(t, 3*1000.0/float64(data.SongLengthMS), nps, 0.01)
}

func TestParseChartTempoChange(t *testing.T) {
	// One beat at 120 BPM (500 ms) then one beat at 60 BPM (1000 ms).
	content := `[SyncTrack]
{
  0 = B 120000
  192 = B 60000
}
[ExpertSingle]
{
  384 = N 0 0
}
`
	data, err := ParseChart(writeChart(t, content))
	require.NoError(t, err)
	assert.InDelta(t, 1500, data.SongLengthMS, 1)
}

func TestParseChartUnknownSectionsSkipped(t *testing.T) {
	content := `[SomeFutureSection]
{
  100 = N 0 0
}
[ExpertDrums]
{
  100 = N 0 0
}
`
	data, err := ParseChart(writeChart(t, content))
	require.NoError(t, err)

	assert.Len(t, data.Tracks, 1)
	track := data.Tracks[chart.TrackKey{Instrument: int(score.InstrumentDrums), Difficulty: int(score.DifficultyExpert)}]
	require.NotNil(t, track)
	assert.Equal(t, 1, track.TotalPlayableNotes)
}

func TestParseChartWithBOM(t *testing.T) {
	content := "﻿[ExpertSingle]\n{\n  100 = N 0 0\n}\n"
	data, err := ParseChart(writeChart(t, content))
	require.NoError(t, err)
	track := data.Tracks[chart.TrackKey{Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyExpert)}]
	require.NotNil(t, track)
	assert.Equal(t, 1, track.TotalPlayableNotes)
}

func TestParseSongINIOverridesChartMetadata(t *testing.T) {
	dir := t.TempDir()
	chartPath := filepath.Join(dir, "notes.chart")
	require.NoError(t, os.WriteFile(chartPath, []byte(minimalChart), 0644))
	iniContent := "﻿[song]\nname = Better Name\nartist = Better Band\ncharter = better_charter\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.ini"), []byte(iniContent), 0644))

	data := Parse(chartPath)
	require.NotNil(t, data)
	assert.Equal(t, "Better Name", data.Name)
	assert.Equal(t, "Better Band", data.Artist)
	assert.Equal(t, "better_charter", data.Charter)
}

func TestArtistFromFolderPattern(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Syncatto - Afterglow")
	require.NoError(t, os.MkdirAll(dir, 0755))
	chartPath := filepath.Join(dir, "notes.chart")
	require.NoError(t, os.WriteFile(chartPath, []byte("[ExpertSingle]\n{\n  0 = N 0 0\n}\n"), 0644))

	data := Parse(chartPath)
	require.NotNil(t, data)
	assert.Equal(t, "Syncatto", data.Artist)
}

func TestStatsFor(t *testing.T) {
	path := writeChart(t, minimalChart)

	stats := StatsFor(path, int(score.InstrumentLead), int(score.DifficultyExpert))
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.TotalNotes)
	assert.Greater(t, stats.NPS, 0.0)

	// Missing track yields nil, not zeroes.
	assert.Nil(t, StatsFor(path, int(score.InstrumentDrums), int(score.DifficultyEasy)))
}
