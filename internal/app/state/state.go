// Package state persists the client's fingerprint-to-best-score map so
// score detection survives restarts.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// fileFormat is the on-disk JSON shape.
type fileFormat struct {
	ScoreValues map[string]int `json:"score_values"`
	LastUpdated int64          `json:"last_updated"`
}

// legacyProbe detects the retired list-based state format.
type legacyProbe struct {
	ScoreValues map[string]int `json:"score_values"`
	KnownScores []string       `json:"known_scores"`
}

// Store is the persistent fingerprint → best score map. For every
// fingerprint ever observed it holds the maximum score seen; it never
// shrinks except through InitializeFrom.
type Store struct {
	path string

	mu             sync.Mutex
	values         map[string]int
	needsMigration bool
}

// Load opens the state file at path, creating an empty store when the
// file does not exist. A corrupt file is archived with a timestamp and
// replaced by a fresh state. A legacy-format file flags the store for
// reinitialization.
func Load(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]int)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		zlog.Info().Msg("No existing state file, starting fresh")
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read state file")
	}

	var probe legacyProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		archived := archiveCorrupt(path)
		zlog.Warn().Err(err).Str("archive", archived).Msg("State file corrupt, starting fresh")
		return s, nil
	}

	switch {
	case probe.ScoreValues != nil:
		s.values = probe.ScoreValues
		zlog.Info().Int("scores", len(s.values)).Msg("Loaded known scores from state file")
	case probe.KnownScores != nil:
		// Old format carried no score values; re-sync from the game's file.
		s.needsMigration = true
		zlog.Info().Msg("Old state format detected, will re-sync with current scores")
	}
	return s, nil
}

// NeedsMigration reports whether a legacy-format file was loaded and
// the store must be reinitialized from the game's current score file.
func (s *Store) NeedsMigration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsMigration
}

// IsNewOrImproved reports whether the fingerprint is unseen or the
// score strictly exceeds the stored best.
func (s *Store) IsNewOrImproved(fp score.Fingerprint, value int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.values[fp.Key()]
	return !ok || value > stored
}

// Best returns the stored best for the fingerprint, or 0 when unseen.
func (s *Store) Best(fp score.Fingerprint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[fp.Key()]
}

// MarkSeen upserts the fingerprint to max(stored, value) and persists.
func (s *Store) MarkSeen(fp score.Fingerprint, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fp.Key()
	if stored, ok := s.values[key]; !ok || value > stored {
		s.values[key] = value
	}
	return s.persistLocked()
}

// InitializeFrom replaces the entire map from decoded score entries and
// persists. Used on first run and legacy-format migration.
func (s *Store) InitializeFrom(entries []score.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]int, len(entries))
	for _, e := range entries {
		key := e.Fingerprint.Key()
		if e.Score > s.values[key] {
			s.values[key] = e.Score
		}
	}
	s.needsMigration = false
	zlog.Info().Int("scores", len(s.values)).Msg("Initialized state from score file")
	return s.persistLocked()
}

// Len returns the number of tracked fingerprints.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// persistLocked writes the state atomically: full serialize to a temp
// file in the same directory, then rename over the target. A partial
// write can never yield a parseable-but-truncated file.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "create state directory")
	}
	data, err := json.MarshalIndent(fileFormat{
		ScoreValues: s.values,
		LastUpdated: time.Now().Unix(),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace state file")
	}
	return nil
}

func archiveCorrupt(path string) string {
	archived := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102_150405"))
	if err := os.Rename(path, archived); err != nil {
		return ""
	}
	return archived
}
