// Package botconfig manages the server's versioned JSON configuration:
// creation from defaults, corruption recovery, additive deep-merge
// migrations, dotted-path access, and typed views of the announcement
// palettes.
package botconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

const (
	// ConfigVersion is the current document version; documents below it
	// are migrated on load.
	ConfigVersion = 3
	// BotVersion is stamped into the document on every save.
	BotVersion = "1.2.0"
)

// Manager owns the configuration document. One Manager is loaded per
// process; the interactive settings flow is the only writer.
type Manager struct {
	path string

	mu  sync.RWMutex
	doc map[string]any
}

// Load reads the config at path. A missing file is replaced by a fully
// populated default; a corrupt file is archived with a timestamp and
// regenerated; an outdated version is migrated and saved back.
func Load(path string) (*Manager, error) {
	m := &Manager{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		zlog.Info().Str("path", path).Msg("No config file found, creating default")
		m.doc = defaultConfig()
		if err := m.Save(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		backup := m.archiveCorrupt()
		zlog.Warn().Err(err).Str("backup", backup).Msg("Config file corrupt, regenerating defaults")
		m.doc = defaultConfig()
		if err := m.Save(); err != nil {
			return nil, err
		}
		return m, nil
	}
	m.doc = doc

	if version := m.Version(); version < ConfigVersion {
		zlog.Info().Int("from", version).Int("to", ConfigVersion).Msg("Migrating config")
		m.migrate(version)
		if err := m.Save(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Version returns the document's config_version, defaulting to 1.
func (m *Manager) Version() int {
	if v, ok := m.Get("config_version", 1).(float64); ok {
		return int(v)
	}
	if v, ok := m.Get("config_version", 1).(int); ok {
		return v
	}
	return 1
}

// Get returns the value at a dotted path (e.g.
// "announcements.record_breaks.style"), or def when absent.
func (m *Manager) Get(path string, def any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cur any = m.doc
	for _, key := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur, ok = node[key]
		if !ok {
			return def
		}
	}
	return cur
}

// GetBool is Get with a bool coercion.
func (m *Manager) GetBool(path string, def bool) bool {
	if v, ok := m.Get(path, def).(bool); ok {
		return v
	}
	return def
}

// GetString is Get with a string coercion.
func (m *Manager) GetString(path, def string) string {
	if v, ok := m.Get(path, def).(string); ok {
		return v
	}
	return def
}

// GetFloat is Get with a float coercion; JSON numbers decode as
// float64.
func (m *Manager) GetFloat(path string, def float64) float64 {
	switch v := m.Get(path, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// GetInt is Get with an int coercion.
func (m *Manager) GetInt(path string, def int) int {
	return int(m.GetFloat(path, float64(def)))
}

// Set writes a value at a dotted path, creating intermediate maps.
func (m *Manager) Set(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := strings.Split(path, ".")
	node := m.doc
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	node[keys[len(keys)-1]] = value
}

// Save writes the document atomically (temp file + rename), stamping
// config_version, bot_version and last_updated.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.doc["config_version"] = ConfigVersion
	m.doc["bot_version"] = BotVersion
	m.doc["last_updated"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".config-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp config file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp config file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp config file")
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace config file")
	}
	return nil
}

func (m *Manager) archiveCorrupt() string {
	backup := fmt.Sprintf("%s.backup-%s", m.path, time.Now().Format("20060102_150405"))
	if err := os.Rename(m.path, backup); err != nil {
		return ""
	}
	return backup
}

func zerologWarn(err error, node string) {
	zlog.Warn().Err(err).Str("node", node).Msg("Config decode failed")
}

// decode fills a typed view from a dotted path using mapstructure.
// Missing keys keep the zero value; defaults are guaranteed by
// migration, not by decode.
func (m *Manager) decode(path string, out any) error {
	raw := m.Get(path, nil)
	node, ok := raw.(map[string]any)
	if !ok {
		return errors.Newf("config node %s is not an object", path)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "create decoder")
	}
	return errors.Wrapf(dec.Decode(node), "decode config node %s", path)
}
