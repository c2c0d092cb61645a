package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	tmp := t.TempDir()
	return &Config{
		DataDir:   tmp,
		ServerURL: "https://dav.example.com/remote.php/dav/files/alice",
		Username:  "alice",
		Password:  "secret",
		Path:      filepath.Join(tmp, "config.json"),
	}
}

func TestConfig_Validate_FillsDefaults(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, DefaultRemotePath, cfg.RemotePath)
	assert.NotEmpty(t, cfg.DeviceID)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Positive(t, cfg.MaxParallel)
	assert.Positive(t, cfg.RetryCount)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, interval)
}

func TestConfig_Validate_Errors(t *testing.T) {
	t.Run("bad server url", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.ServerURL = "ftp://bad.example.com"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server url")
	})

	t.Run("missing username", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Username = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unparseable interval", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SyncInterval = "whenever"
		assert.Error(t, cfg.Validate())
	})

	t.Run("interval too short", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SyncInterval = "1s"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "minimum")
	})
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(cfg.DataDir, "notes"), cfg.NotesDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, "journal.db"), cfg.JournalPath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "tombstones.json"), cfg.TombstonePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "notedav.lock"), cfg.LockPath())
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	cfg := validConfig(t)
	cfg.RemotePath = "/my-notes"
	cfg.ExportMarkdown = true
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(cfg.Path)
	require.NoError(t, err)

	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, "/my-notes", loaded.RemotePath)
	assert.Equal(t, cfg.Username, loaded.Username)
	assert.Equal(t, cfg.Password, loaded.Password)
	assert.Equal(t, cfg.DeviceID, loaded.DeviceID)
	assert.True(t, loaded.ExportMarkdown)
	assert.Equal(t, cfg.Path, loaded.Path)
}

func TestGenerateDeviceID_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, GenerateDeviceID())
}
