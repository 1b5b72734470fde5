package chartfile

import (
	"crypto/md5"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	zlog "github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// Locator finds chart files by chart id. The game never exposes the
// chart path for an id, so lookup is a brute-force walk of the songs
// roots hashing every notes.chart/notes.mid/notes.midi with MD5 and
// matching the hex against the id (exact or 8-char prefix).
//
// Results, including misses, are cached for the process lifetime.
type Locator struct {
	roots []string

	mu    sync.Mutex
	cache map[score.ChartID]string // "" = known miss
}

// NewLocator creates a locator over the given songs roots. When roots
// is empty, the game's settings.ini pathN entries are consulted.
func NewLocator(roots []string, gameSettingsPath string) *Locator {
	if len(roots) == 0 && gameSettingsPath != "" {
		roots = songFoldersFromSettings(gameSettingsPath)
	}
	return &Locator{
		roots: roots,
		cache: make(map[score.ChartID]string),
	}
}

// songFoldersFromSettings reads the game's settings.ini and collects
// every existing folder named by a path0, path1, ... key.
func songFoldersFromSettings(path string) []string {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		zlog.Debug().Err(err).Msg("Could not parse game settings")
		return nil
	}
	var folders []string
	for _, section := range cfg.Sections() {
		for _, key := range section.Keys() {
			name := key.Name()
			if !strings.HasPrefix(name, "path") || !isAllDigits(name[4:]) {
				continue
			}
			folder := key.String()
			if folder == "" {
				continue
			}
			if _, err := os.Stat(folder); err == nil {
				folders = append(folders, folder)
			}
		}
	}
	return folders
}

var chartFileNames = map[string]bool{
	"notes.chart": true,
	"notes.mid":   true,
	"notes.midi":  true,
}

// Find returns the chart file path for the id, or "" when no chart in
// any songs root hashes to it.
func (l *Locator) Find(chartID score.ChartID) string {
	l.mu.Lock()
	if path, ok := l.cache[chartID]; ok {
		l.mu.Unlock()
		return path
	}
	l.mu.Unlock()

	path := l.scan(chartID)

	l.mu.Lock()
	l.cache[chartID] = path
	l.mu.Unlock()
	return path
}

func (l *Locator) scan(chartID score.ChartID) string {
	// The id may itself be an 8-char abbreviation; prefix match covers it.
	want := strings.ToLower(string(chartID))

	for _, root := range l.roots {
		var found string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree, keep walking
			}
			if d.IsDir() || !chartFileNames[strings.ToLower(d.Name())] {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			sum := md5.Sum(data)
			hash := hex.EncodeToString(sum[:])
			if hash == want || strings.HasPrefix(hash, want) {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err == nil && found != "" {
			return found
		}
	}
	zlog.Debug().Str("chart", chartID.Abbrev()).Msg("Chart file not found in songs roots")
	return ""
}
