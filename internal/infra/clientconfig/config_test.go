package clientconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  data_dir: /tmp/ch\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
	assert.Equal(t, 5, cfg.Server.TimeoutSec)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHSCORE_SERVER_URL", "http://example.com:9999")
	t.Setenv("CHSCORE_AUTH_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: http://ignored\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:9999", cfg.Server.URL)
	assert.Equal(t, "tok-123", cfg.Server.AuthToken)
}

func TestLoadInvalidTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  timeout_sec: 500\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{Game: GameConfig{DataDir: "/data/ch"}}
	assert.Equal(t, filepath.Join("/data/ch", "scoredata.bin"), cfg.ScoreFile())
	assert.Equal(t, filepath.Join("/data/ch", "songcache.bin"), cfg.SongCacheFile())
	assert.Equal(t, filepath.Join("/data/ch", "currentsong.txt"), cfg.NowPlayingFile())
	assert.Equal(t, filepath.Join("/data/ch", "score_state.json"), cfg.StatePath())

	cfg.Game.StateFile = "/elsewhere/state.json"
	assert.Equal(t, "/elsewhere/state.json", cfg.StatePath())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "client.yaml")

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	cfg.Server.AuthToken = "persisted-token"
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "persisted-token", reloaded.Server.AuthToken)
}
