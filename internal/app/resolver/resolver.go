// Package resolver merges song metadata for a score event from the
// live now-playing export, the decoded song cache, and chart-file
// parsing.
package resolver

import (
	"regexp"

	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/app/nowplaying"
	"github.com/goofenthol/chscore/internal/domain/chart"
	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
	"github.com/goofenthol/chscore/internal/infra/chartfile"
)

// colorTagRe matches the game's inline color markup, which leaks into
// now-playing fields.
var colorTagRe = regexp.MustCompile(`</?color[^>]*>`)

// StripColorTags removes <color=#RRGGBB>...</color> markup.
func StripColorTags(s string) string {
	return colorTagRe.ReplaceAllString(s, "")
}

// Enriched is a raw score entry joined with everything the resolver
// could learn about its chart.
type Enriched struct {
	Entry score.Entry
	Meta  song.Metadata

	// From chart parsing; nil when the chart file was not found or did
	// not parse.
	Stats *chartfile.TrackStats

	// Rich is true when any metadata source succeeded. Raw entries
	// display as the bracketed short chart id.
	Rich bool
}

// SongCache is the subset of the song-cache decode the resolver needs.
type SongCache interface {
	Lookup(id score.ChartID) (song.Metadata, bool)
}

// Resolver owns the metadata sources. The now-playing tracker and the
// chart locator are process-lifetime singletons held here rather than
// package state.
type Resolver struct {
	nowPlaying *nowplaying.Tracker
	songCache  SongCache
	locator    *chartfile.Locator
}

// New assembles a resolver. Any source may be nil; missing sources
// simply contribute nothing.
func New(tracker *nowplaying.Tracker, cache SongCache, locator *chartfile.Locator) *Resolver {
	return &Resolver{nowPlaying: tracker, songCache: cache, locator: locator}
}

// Resolve enriches one score entry. Precedence for title/artist/
// charter: live file > song cache > chart parse. Note counts and NPS
// come only from the chart parse.
func (r *Resolver) Resolve(entry score.Entry) Enriched {
	out := Enriched{
		Entry: entry,
		Meta:  song.Metadata{ChartID: entry.Fingerprint.ChartID},
	}

	var chartMeta song.Metadata
	if r.locator != nil {
		if path := r.locator.Find(entry.Fingerprint.ChartID); path != "" {
			if data := chartfile.Parse(path); data != nil {
				chartMeta = song.Metadata{
					Title:    data.Name,
					Artist:   data.Artist,
					Charter:  data.Charter,
					Album:    data.Album,
					LengthMS: data.SongLengthMS,
					Filepath: path,
				}
				key := chart.TrackKey{
					Instrument: int(entry.Fingerprint.Instrument),
					Difficulty: int(entry.Fingerprint.Difficulty),
				}
				if t, ok := data.Tracks[key]; ok {
					out.Stats = &chartfile.TrackStats{
						TotalNotes: t.TotalPlayableNotes,
						NPS:        data.NoteDensity(key),
					}
				}
			}
		}
	}

	// Lowest precedence first; later merges overwrite non-empty fields.
	out.Meta.Merge(chartMeta)
	if r.songCache != nil {
		if cached, ok := r.songCache.Lookup(entry.Fingerprint.ChartID); ok {
			out.Meta.Merge(cached)
		}
	}
	if r.nowPlaying != nil {
		live := r.nowPlaying.Current()
		out.Meta.Merge(song.Metadata{
			Title:   StripColorTags(live.Title),
			Artist:  StripColorTags(live.Artist),
			Charter: StripColorTags(live.Charter),
		})
	}

	out.Rich = out.Meta.Title != "" || out.Meta.Artist != "" || out.Stats != nil
	if !out.Rich {
		zlog.Debug().Str("chart", entry.Fingerprint.ChartID.Abbrev()).
			Msg("No metadata source succeeded, submitting raw")
	}
	return out
}

// Done signals that the score event built from the last Resolve has
// been fully handled (submitted or permanently failed); the now-playing
// cache is cleared exactly once per event.
func (r *Resolver) Done() {
	if r.nowPlaying != nil {
		r.nowPlaying.Clear()
	}
}
