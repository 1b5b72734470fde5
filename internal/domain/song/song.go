// Package song provides the song metadata entity.
package song

import (
	"path"
	"strings"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// Metadata holds what is known about a chart's song. Every field is
// independently optional; empty means unknown.
type Metadata struct {
	ChartID  score.ChartID
	Title    string
	Artist   string
	Album    string
	Charter  string
	LengthMS int
	Filepath string
}

// Merge overlays other onto m: a non-empty field in other wins, an
// empty field never clears a stored value. LengthMS follows the same
// rule with zero as "unknown".
func (m *Metadata) Merge(other Metadata) {
	if other.Title != "" {
		m.Title = other.Title
	}
	if other.Artist != "" {
		m.Artist = other.Artist
	}
	if other.Album != "" {
		m.Album = other.Album
	}
	if other.Charter != "" {
		m.Charter = other.Charter
	}
	if other.LengthMS != 0 {
		m.LengthMS = other.LengthMS
	}
	if other.Filepath != "" {
		m.Filepath = other.Filepath
	}
}

// DisplayTitle returns the song title, falling back to the bracketed
// short chart id when no title is known.
func (m Metadata) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.ChartID.Short()
}

// TitleFromPath derives a title from a chart file path: the file stem
// with known suffixes stripped, title-cased. Returns "" for an empty
// path.
func TitleFromPath(filepath string) string {
	if filepath == "" {
		return ""
	}
	// Cache paths are Windows-style; normalize before taking the base.
	name := path.Base(strings.ReplaceAll(filepath, `\`, "/"))
	lower := strings.ToLower(name)
	for _, ext := range []string{".sng", ".chart", ".mid", ".ini"} {
		if strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	return titleCase(name)
}

func titleCase(s string) string {
	prevLetter := false
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z' && !prevLetter:
			prevLetter = true
			return r - 'a' + 'A'
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			prevLetter = true
			return r
		default:
			prevLetter = false
			return r
		}
	}, s)
}
