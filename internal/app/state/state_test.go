package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goofenthol/chscore/internal/domain/score"
)

func fp(id string, instr score.Instrument, diff score.Difficulty) score.Fingerprint {
	return score.Fingerprint{ChartID: score.ChartID(id), Instrument: instr, Difficulty: diff}
}

func TestStoreMonotonicity(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	f := fp("aa", score.InstrumentLead, score.DifficultyExpert)

	for _, v := range []int{100, 500, 300, 500, 200} {
		require.NoError(t, s.MarkSeen(f, v))
	}
	assert.Equal(t, 500, s.Best(f))
	assert.False(t, s.IsNewOrImproved(f, 500))
	assert.True(t, s.IsNewOrImproved(f, 501))
}

func TestStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path)
	require.NoError(t, err)

	f := fp("bb", score.InstrumentDrums, score.DifficultyHard)
	require.NoError(t, s.MarkSeen(f, 42000))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42000, reloaded.Best(f))
	assert.False(t, reloaded.NeedsMigration())
}

func TestStoreLegacyFormatFlagsMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{"known_scores": ["aa:0:3", "bb:4:2"]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.NeedsMigration())
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.InitializeFrom([]score.Entry{
		{Fingerprint: fp("aa", score.InstrumentLead, score.DifficultyExpert), Score: 9000},
	}))
	assert.False(t, s.NeedsMigration())
	assert.Equal(t, 9000, s.Best(fp("aa", score.InstrumentLead, score.DifficultyExpert)))
}

func TestStoreCorruptFileArchived(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".corrupt-")
}

func TestStoreFileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkSeen(fp("00112233445566778899aabbccddeeff", score.InstrumentLead, score.DifficultyExpert), 1234))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	values, ok := doc["score_values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1234), values["00112233445566778899aabbccddeeff:0:3"])
	assert.Contains(t, doc, "last_updated")
}

func TestInitializeFromReplacesEverything(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	old := fp("aa", score.InstrumentLead, score.DifficultyExpert)
	require.NoError(t, s.MarkSeen(old, 777))

	require.NoError(t, s.InitializeFrom([]score.Entry{
		{Fingerprint: fp("bb", score.InstrumentBass, score.DifficultyEasy), Score: 10},
	}))
	assert.Equal(t, 0, s.Best(old))
	assert.Equal(t, 1, s.Len())
}
