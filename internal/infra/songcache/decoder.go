// Package songcache extracts a chart-id to title/filepath mapping from
// the game's internal song cache.
//
// The cache has no documented structure. Decoding leans on one stable
// landmark: the byte string 0x0A "Clone Hero" 0x00 immediately precedes
// each entry's 16-byte chart id. The file path is found by scanning a
// bounded window after the id.
package songcache

import (
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
)

var sentinel = []byte("\x0aClone Hero\x00")

// pathWindow bounds how far past the chart id a file path may start.
const pathWindow = 500

// DecodeFile reads and decodes the song cache at path.
func DecodeFile(path string) (map[score.ChartID]song.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read song cache")
	}
	return Decode(data), nil
}

// Decode scans the cache image for entries. Best effort: entries
// without a recognizable file path are skipped.
func Decode(data []byte) map[score.ChartID]song.Metadata {
	songs := make(map[score.ChartID]song.Metadata)

	pos := 0
	for {
		markerPos := bytes.Index(data[pos:], sentinel)
		if markerPos == -1 {
			break
		}
		idPos := pos + markerPos + len(sentinel)
		if idPos+16 > len(data) {
			break
		}
		chartID := score.ChartID(hex.EncodeToString(data[idPos : idPos+16]))

		window := data[idPos+16:]
		if len(window) > pathWindow {
			window = window[:pathWindow]
		}
		if filepath := extractPath(window); filepath != "" {
			songs[chartID] = song.Metadata{
				ChartID:  chartID,
				Title:    song.TitleFromPath(filepath),
				Filepath: filepath,
			}
		}

		pos = idPos + 16
	}
	return songs
}

// extractPath finds the first filesystem path in the window: it starts
// at a drive-letter or Songs folder marker and ends at a chart file
// suffix or NUL, whichever comes first.
func extractPath(window []byte) string {
	start := -1
	for _, pattern := range [][]byte{[]byte(`:\`), []byte(`Songs\`), []byte(`songs\`)} {
		idx := bytes.Index(window, pattern)
		if idx == -1 {
			continue
		}
		if bytes.Equal(pattern, []byte(`:\`)) && idx > 0 {
			idx-- // include the drive letter
		}
		start = idx
		break
	}
	if start == -1 {
		return ""
	}

	end := len(window)
	for _, suffix := range [][]byte{[]byte(".sng"), []byte(".chart"), []byte(".mid")} {
		if idx := bytes.Index(window[start:], suffix); idx != -1 {
			end = start + idx + len(suffix)
			break
		}
	}
	if idx := bytes.IndexByte(window[start:], 0); idx != -1 && start+idx < end {
		end = start + idx
	}

	return decodeUTF8(window[start:end])
}

// decodeUTF8 decodes bytes as UTF-8, replacing invalid sequences.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
