package chartfile

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goofenthol/chscore/internal/domain/score"
)

func TestLocatorFindsChartByHash(t *testing.T) {
	root := t.TempDir()
	songDir := filepath.Join(root, "Band - Song")
	require.NoError(t, os.MkdirAll(songDir, 0755))

	content := []byte("[ExpertSingle]\n{\n  0 = N 0 0\n}\n")
	chartPath := filepath.Join(songDir, "notes.chart")
	require.NoError(t, os.WriteFile(chartPath, content, 0644))

	sum := md5.Sum(content)
	id := score.ChartID(hex.EncodeToString(sum[:]))

	loc := NewLocator([]string{root}, "")
	assert.Equal(t, chartPath, loc.Find(id))

	// Prefix lookup with the 8-char abbreviation.
	assert.Equal(t, chartPath, loc.Find(score.ChartID(id.Abbrev())))
}

func TestLocatorCachesNegativeResults(t *testing.T) {
	root := t.TempDir()
	loc := NewLocator([]string{root}, "")

	id := score.ChartID("00112233445566778899aabbccddeeff")
	assert.Equal(t, "", loc.Find(id))

	// A chart appearing later is not picked up: misses are cached.
	content := []byte("data")
	sum := md5.Sum(content)
	newID := score.ChartID(hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.chart"), content, 0644))
	assert.Equal(t, "", loc.Find(id))
	assert.NotEqual(t, "", loc.Find(newID))
}

func TestLocatorSettingsIniFolders(t *testing.T) {
	songs := t.TempDir()
	content := []byte("some chart")
	require.NoError(t, os.WriteFile(filepath.Join(songs, "notes.mid"), content, 0644))
	sum := md5.Sum(content)
	id := score.ChartID(hex.EncodeToString(sum[:]))

	settings := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(settings, []byte("[paths]\npath0 = "+songs+"\n"), 0644))

	loc := NewLocator(nil, settings)
	assert.Equal(t, filepath.Join(songs, "notes.mid"), loc.Find(id))
}
