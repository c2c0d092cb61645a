// Package config holds the client configuration file format and its
// defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/notedav/notedav/internal/davsdk"
	"github.com/notedav/notedav/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".notedav", "config.json")
	DefaultDataDir    = filepath.Join(home, ".notedav")
	DefaultRemotePath = "/notedav"
)

const (
	DefaultSyncInterval = "5m"
	minSyncInterval     = 10 * time.Second
)

type Config struct {
	DataDir        string `json:"data_dir"`
	ServerURL      string `json:"server_url"`
	RemotePath     string `json:"remote_path"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	DeviceID       string `json:"device_id"`
	MaxParallel    int    `json:"max_parallel,omitempty"`
	RetryCount     int    `json:"retry_count,omitempty"`
	SyncInterval   string `json:"sync_interval,omitempty"`
	ExportMarkdown bool   `json:"export_markdown,omitempty"`
	Path           string `json:"-"`
}

// Validate normalizes paths, fills defaults and rejects values the client
// cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir %q: %w", c.DataDir, err)
	}
	c.DataDir = dataDir

	if c.Path != "" {
		path, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config path %q: %w", c.Path, err)
		}
		c.Path = path
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server url %q: expected http(s) URL", c.ServerURL)
	}

	if c.RemotePath == "" {
		c.RemotePath = DefaultRemotePath
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.DeviceID == "" {
		c.DeviceID = GenerateDeviceID()
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = davsdk.DefaultMaxParallel
	}
	if c.RetryCount == 0 {
		c.RetryCount = davsdk.DefaultRetryCount
	}
	if c.SyncInterval == "" {
		c.SyncInterval = DefaultSyncInterval
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	return nil
}

// Interval parses the configured sync interval.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf("sync interval %q: %w", c.SyncInterval, err)
	}
	if d < minSyncInterval {
		return 0, fmt.Errorf("sync interval %q: minimum is %s", c.SyncInterval, minSyncInterval)
	}
	return d, nil
}

// NotesDir is where note JSON files live.
func (c *Config) NotesDir() string {
	return filepath.Join(c.DataDir, "notes")
}

// JournalPath is the sync journal database file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// TombstonePath is the deletion tracker file.
func (c *Config) TombstonePath() string {
	return filepath.Join(c.DataDir, "tombstones.json")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "notedav.lock")
}

func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// contains credentials
	return os.WriteFile(c.Path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GenerateDeviceID derives a stable per-machine id, falling back to a
// random one when the machine id is unavailable.
func GenerateDeviceID() string {
	if id, err := machineid.ProtectedID("notedav"); err == nil && id != "" {
		return id
	}
	return uuid.NewString()
}
