package chartfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/goofenthol/chscore/internal/domain/chart"
)

// SongINI is the metadata read from a chart folder's song.ini.
type SongINI struct {
	Name       string
	Artist     string
	Album      string
	Genre      string
	Year       string
	Charter    string
	SongLength int // ms
}

func (s *SongINI) applyTo(data *chart.Data) {
	if s.Name != "" {
		data.Name = s.Name
	}
	if s.Artist != "" {
		data.Artist = s.Artist
	}
	if s.Album != "" {
		data.Album = s.Album
	}
	if s.Genre != "" {
		data.Genre = s.Genre
	}
	if s.Year != "" {
		data.Year = s.Year
	}
	if s.Charter != "" {
		data.Charter = s.Charter
	}
}

// ReadSongINI looks for song.ini next to the chart file (or one folder
// up, for nested charts) and reads it forgivingly: case-insensitive
// keys, BOM tolerated, no interpolation. Returns nil when absent or
// unreadable; song.ini is always optional.
func ReadSongINI(chartPath string) *SongINI {
	if strings.EqualFold(filepath.Ext(chartPath), ".sng") {
		return nil
	}
	folder := filepath.Dir(chartPath)
	iniPath := filepath.Join(folder, "song.ini")
	if _, err := os.Stat(iniPath); err != nil {
		iniPath = filepath.Join(filepath.Dir(folder), "song.ini")
		if _, err := os.Stat(iniPath); err != nil {
			return nil
		}
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, iniPath)
	if err != nil {
		return nil
	}
	section := cfg.Section("song")
	if len(section.Keys()) == 0 {
		return nil
	}

	get := func(names ...string) string {
		for _, name := range names {
			if v := strings.TrimSpace(section.Key(name).String()); v != "" {
				return v
			}
		}
		return ""
	}

	out := &SongINI{
		Name:    get("name", "title", "song"),
		Artist:  get("artist", "frets"),
		Album:   get("album"),
		Genre:   get("genre"),
		Year:    get("year"),
		Charter: get("charter", "frets", "modchart"),
	}
	if v := get("song_length"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			out.SongLength = ms
		}
	}
	if *out == (SongINI{}) {
		return nil
	}
	return out
}

// artistFromFolder extracts an artist from an "Artist - Title" song
// folder name. Returns "" when the pattern does not apply.
func artistFromFolder(chartPath string) string {
	folder := filepath.Base(filepath.Dir(chartPath))
	artist, _, found := strings.Cut(folder, " - ")
	if !found {
		return ""
	}
	artist = strings.TrimSpace(artist)
	if len(artist) < 2 || isAllDigits(artist) {
		return ""
	}
	return artist
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
