// Package nowplaying tracks the game's live "current song" export.
//
// The game clears the export shortly after a song ends, but the score
// file is written after the clear. A 1 Hz poller caches the last
// non-empty read so the metadata is still available when the score
// event arrives; the cache is cleared only after a score event is
// fully processed.
package nowplaying

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Song is one now-playing observation: Title, Artist, Charter.
type Song struct {
	Title   string
	Artist  string
	Charter string
}

// Empty reports whether the observation carries no title.
func (s Song) Empty() bool { return s.Title == "" }

// Tracker polls the now-playing file and caches across the write gap.
type Tracker struct {
	path     string
	interval time.Duration

	mu     sync.Mutex
	cached Song

	done chan struct{}
	stop context.CancelFunc
}

// NewTracker creates a tracker for the now-playing file at path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path, interval: time.Second}
}

// Start launches the polling loop. Stop with Stop.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.stop = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			t.poll()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	zlog.Debug().Str("path", t.path).Msg("Now-playing poller started")
}

// Stop terminates the polling loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.stop == nil {
		return
	}
	t.stop()
	<-t.done
}

// poll reads the file and refreshes the cache on a non-empty read.
func (t *Tracker) poll() {
	song, ok := readFile(t.path)
	if !ok || song.Empty() {
		return
	}
	t.mu.Lock()
	t.cached = song
	t.mu.Unlock()
}

// Current returns the freshest observation: a direct read when the
// file currently has content, else the cached value from before the
// game cleared it.
func (t *Tracker) Current() Song {
	if song, ok := readFile(t.path); ok && !song.Empty() {
		t.mu.Lock()
		t.cached = song
		t.mu.Unlock()
		return song
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cached
}

// Clear drops the cached song. Call exactly once per fully-processed
// score event.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.cached = Song{}
	t.mu.Unlock()
}

// readFile reads the three-line now-playing format: Title, Artist,
// Charter. ok is false when the file is missing or unreadable.
func readFile(path string) (Song, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Song{}, false
	}
	lines := strings.Split(string(data), "\n")
	var song Song
	if len(lines) >= 1 {
		song.Title = strings.TrimSpace(lines[0])
	}
	if len(lines) >= 2 {
		song.Artist = strings.TrimSpace(lines[1])
	}
	if len(lines) >= 3 {
		song.Charter = strings.TrimSpace(lines[2])
	}
	return song, true
}
