// Package watcher monitors the game's score file and turns writes into
// classified score events.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/app/state"
	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/infra/scoredata"
)

// EventKind classifies one watcher observation.
type EventKind int

const (
	// Improved: the score is new or beats the persisted best.
	Improved EventKind = iota
	// NotImproved: the score changed but does not beat the best.
	NotImproved
	// NoopWrite: the file was written but no score changed.
	NoopWrite
)

// Event is one classified observation.
type Event struct {
	Kind  EventKind
	Entry score.Entry

	// PreviousBest and Delta accompany NotImproved events.
	PreviousBest int
	Delta        int
}

// Disposition is the sink's verdict on an Improved event.
type Disposition int

const (
	// Processed: handled (submitted, or permanently failed such as an
	// auth rejection); the score is marked seen.
	Processed Disposition = iota
	// Retry: transient failure; the score stays unseen so the next
	// write or a resync re-emits it.
	Retry
)

// Sink consumes events. The returned disposition only matters for
// Improved events.
type Sink func(Event) Disposition

// Watcher owns the debounced watch loop and the classification of
// score-file writes against the persistent state store.
type Watcher struct {
	scorePath string
	store     *state.Store
	sink      Sink

	debounce time.Duration
	settle   time.Duration

	prevSnapshot  map[string]int
	firstParse    bool
	lastProcessed time.Time
}

// New creates a watcher over the score file at scorePath.
func New(scorePath string, store *state.Store, sink Sink) *Watcher {
	return &Watcher{
		scorePath:  filepath.Clean(scorePath),
		store:      store,
		sink:       sink,
		debounce:   2 * time.Second,
		settle:     500 * time.Millisecond,
		firstParse: true,
	}
}

// CatchUp runs the one-shot startup scan. On a fresh or legacy state
// the store is initialized silently from the current file; otherwise
// every fingerprint the store considers new-or-improved is emitted as
// an Improved event. Replaying the scan emits nothing new: scores are
// only marked seen on Processed dispositions, and already-seen scores
// never re-emit.
func (w *Watcher) CatchUp() error {
	entries, err := scoredata.DecodeFile(w.scorePath)
	if err != nil {
		return errors.Wrap(err, "decode score file")
	}

	if w.store.NeedsMigration() || w.store.Len() == 0 {
		if err := w.store.InitializeFrom(entries); err != nil {
			return errors.Wrap(err, "initialize state")
		}
		w.rememberSnapshot(entries)
		w.firstParse = false
		return nil
	}

	emitted := 0
	for _, e := range entries {
		if !w.store.IsNewOrImproved(e.Fingerprint, e.Score) {
			continue
		}
		emitted++
		if w.sink(Event{Kind: Improved, Entry: e}) == Processed {
			if err := w.store.MarkSeen(e.Fingerprint, e.Score); err != nil {
				zlog.Error().Err(err).Msg("Failed to persist state")
			}
		}
	}
	if emitted > 0 {
		zlog.Info().Int("scores", emitted).Msg("Catch-up scan emitted missed scores")
	}
	w.rememberSnapshot(entries)
	w.firstParse = false
	return nil
}

// Run watches the score file until the context is cancelled. Events
// within the debounce window of the last processed write are ignored;
// after the debounce the writer gets a settle delay to finish before
// the file is read.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create filesystem watcher")
	}
	defer fw.Close()

	// Watch the directory: the game may replace the file on write.
	if err := fw.Add(filepath.Dir(w.scorePath)); err != nil {
		return errors.Wrap(err, "watch score directory")
	}
	zlog.Info().Str("path", w.scorePath).Msg("Watching score file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.scorePath {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if time.Since(w.lastProcessed) < w.debounce {
				continue
			}
			w.lastProcessed = time.Now()
			zlog.Info().Msg("Detected change in score file")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.settle):
			}
			w.Check()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Err(err).Msg("Filesystem watcher error")
		}
	}
}

// Check parses the score file once and emits classified events. Used
// by the watch loop; manual resync goes through CatchUp.
func (w *Watcher) Check() {
	entries, err := scoredata.DecodeFile(w.scorePath)
	if err != nil {
		zlog.Warn().Err(err).Msg("Error reading score file")
		return
	}

	changed := 0
	for _, e := range entries {
		key := e.Fingerprint.Key()
		prev, seen := w.prevSnapshot[key]
		if seen && prev == e.Score {
			continue
		}
		changed++

		if w.store.IsNewOrImproved(e.Fingerprint, e.Score) {
			if w.sink(Event{Kind: Improved, Entry: e}) == Processed {
				if err := w.store.MarkSeen(e.Fingerprint, e.Score); err != nil {
					zlog.Error().Err(err).Msg("Failed to persist state")
				}
			}
			continue
		}

		// Changed but not a personal improvement. The first parse after
		// startup would report every existing score; suppress it.
		if w.firstParse {
			continue
		}
		best := w.store.Best(e.Fingerprint)
		w.sink(Event{
			Kind:         NotImproved,
			Entry:        e,
			PreviousBest: best,
			Delta:        e.Score - best,
		})
	}

	if changed == 0 && !w.firstParse {
		w.sink(Event{Kind: NoopWrite})
	}

	w.rememberSnapshot(entries)
	w.firstParse = false
}

func (w *Watcher) rememberSnapshot(entries []score.Entry) {
	snapshot := make(map[string]int, len(entries))
	for _, e := range entries {
		snapshot[e.Fingerprint.Key()] = e.Score
	}
	w.prevSnapshot = snapshot
}
