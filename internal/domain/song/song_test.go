package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeNonEmptyWins(t *testing.T) {
	m := Metadata{ChartID: "aa", Title: "Old", Artist: "Band", LengthMS: 1000}
	m.Merge(Metadata{Title: "New", Charter: "guy"})

	assert.Equal(t, "New", m.Title)
	assert.Equal(t, "Band", m.Artist)
	assert.Equal(t, "guy", m.Charter)
	assert.Equal(t, 1000, m.LengthMS)

	// Empty fields never clear stored values.
	m.Merge(Metadata{})
	assert.Equal(t, "New", m.Title)
	assert.Equal(t, "Band", m.Artist)
}

func TestDisplayTitleFallback(t *testing.T) {
	m := Metadata{ChartID: "00112233445566778899aabbccddeeff"}
	assert.Equal(t, "[00112233]", m.DisplayTitle())

	m.Title = "Actual Title"
	assert.Equal(t, "Actual Title", m.DisplayTitle())
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "Notes", TitleFromPath(`C:\Songs\band - song\notes.chart`))
	assert.Equal(t, "Through The Fire", TitleFromPath(`D:\Songs\through the fire.sng`))
	assert.Equal(t, "Some Song", TitleFromPath("some song.mid"))
	assert.Equal(t, "", TitleFromPath(""))
}
