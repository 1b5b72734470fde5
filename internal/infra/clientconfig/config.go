// Package clientconfig provides the watcher client's configuration,
// loaded from a YAML file with environment overrides.
package clientconfig

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Game   GameConfig   `yaml:"game"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig points the client at the score server.
type ServerConfig struct {
	URL       string `yaml:"url" validate:"required,url" default:"http://localhost:8080"`
	AuthToken string `yaml:"auth_token"`
	ClientID  string `yaml:"client_id"`
	// TimeoutSec bounds a single submission request.
	TimeoutSec int `yaml:"timeout_sec" default:"5" validate:"gte=1,lte=60"`
}

// GameConfig locates the game's on-disk data.
type GameConfig struct {
	// DataDir holds scoredata.bin, songcache.bin, currentsong.txt and
	// settings.ini. Empty means the platform default.
	DataDir string `yaml:"data_dir"`
	// SongsDirs are the chart roots scanned by the chart locator. When
	// empty, the game's settings.ini pathN entries are used.
	SongsDirs []string `yaml:"songs_dirs"`
	// StateFile is where the watcher's seen-score state lives. Empty
	// means next to the score file.
	StateFile string `yaml:"state_file"`
}

// LogConfig mirrors the teacher-side logger settings.
type LogConfig struct {
	Level string `yaml:"level" default:"info"`
	File  string `yaml:"file"`
}

// ScoreFile returns the path of the game's score file.
func (c *Config) ScoreFile() string {
	return filepath.Join(c.Game.DataDir, "scoredata.bin")
}

// SongCacheFile returns the path of the game's song cache.
func (c *Config) SongCacheFile() string {
	return filepath.Join(c.Game.DataDir, "songcache.bin")
}

// NowPlayingFile returns the path of the live song export.
func (c *Config) NowPlayingFile() string {
	return filepath.Join(c.Game.DataDir, "currentsong.txt")
}

// SettingsFile returns the path of the game's settings.ini.
func (c *Config) SettingsFile() string {
	return filepath.Join(c.Game.DataDir, "settings.ini")
}

// StatePath returns the configured state file, defaulting to a file
// next to the score file.
func (c *Config) StatePath() string {
	if c.Game.StateFile != "" {
		return c.Game.StateFile
	}
	return filepath.Join(c.Game.DataDir, "score_state.json")
}

// Load loads configuration from a YAML file. Environment variables
// take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but a missing file yields defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var cfg Config
		if err := defaults.Set(&cfg); err != nil {
			return nil, errors.Wrap(err, "failed to set defaults")
		}
		cfg.overrideFromEnv()
		return &cfg, nil
	}
	return Load(path)
}

// Save writes the configuration back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CHSCORE_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("CHSCORE_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("CHSCORE_GAME_DIR"); v != "" {
		c.Game.DataDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
