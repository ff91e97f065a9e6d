// Package config resolves the active profile directory and loads the
// profile's config.toml, applying defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/inbox-deck/internal/logging"
)

// DefaultProfile is used when neither a flag nor INBOX_DECK_PROFILE names one.
const DefaultProfile = "default"

// Environment variables consulted by Load and the directory helpers.
const (
	EnvHome     = "INBOX_DECK_HOME"
	EnvProfile  = "INBOX_DECK_PROFILE"
	EnvListen   = "INBOX_DECK_LISTEN"
	EnvToken    = "INBOX_DECK_TOKEN"
	EnvLogLevel = "INBOX_DECK_LOG_LEVEL"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen    string  `toml:"listen"`
	Token     string  `toml:"token"`
	ReadOnly  bool    `toml:"read_only"`
	RateLimit float64 `toml:"rate_limit"` // requests per second; 0 disables
	Burst     int     `toml:"burst"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `toml:"path"`
}

// WatchConfig names files that are re-imported whenever they change.
type WatchConfig struct {
	ProjectsFile string `toml:"projects_file"`
	InboxFile    string `toml:"inbox_file"`
}

// Config is the contents of a profile's config.toml.
type Config struct {
	Profile string         `toml:"-"`
	Dir     string         `toml:"-"`
	Server  ServerConfig   `toml:"server"`
	Storage StorageConfig  `toml:"storage"`
	Log     logging.Config `toml:"log"`
	Watch   WatchConfig    `toml:"watch"`
}

// EffectiveProfile returns profile if set, then $INBOX_DECK_PROFILE, then
// DefaultProfile.
func EffectiveProfile(profile string) string {
	if p := strings.TrimSpace(profile); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvProfile)); p != "" {
		return p
	}
	return DefaultProfile
}

// BaseDir returns the root data directory: $INBOX_DECK_HOME or ~/.inbox-deck.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return expandTilde(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".inbox-deck"), nil
}

// ProfileDir returns <base>/profiles/<profile>, e.g.
// ~/.inbox-deck/profiles/default.
func ProfileDir(profile string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "profiles", EffectiveProfile(profile)), nil
}

// Default returns the configuration used when no file is present.
func Default(dir string) *Config {
	return &Config{
		Dir: dir,
		Server: ServerConfig{
			Listen:    "127.0.0.1:8430",
			RateLimit: 20,
			Burst:     40,
		},
		Storage: StorageConfig{Path: filepath.Join(dir, "inbox.db")},
		Log: logging.Config{
			Level:      "info",
			File:       filepath.Join(dir, "logs", "inbox-deck.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the profile's config.toml over the defaults. A missing file is
// not an error. Environment overrides are applied last.
func Load(profile string) (*Config, error) {
	dir, err := ProfileDir(profile)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(filepath.Join(dir, "config.toml"), dir)
	if err != nil {
		return nil, err
	}
	cfg.Profile = EffectiveProfile(profile)
	return cfg, nil
}

// LoadFile is Load for an explicit file path. dir anchors relative paths and
// default locations.
func LoadFile(path, dir string) (*Config, error) {
	cfg := Default(dir)

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) resolvePaths() {
	resolve := func(p string) string {
		if p == "" {
			return ""
		}
		p = expandTilde(p)
		if !filepath.IsAbs(p) && c.Dir != "" {
			p = filepath.Join(c.Dir, p)
		}
		return filepath.Clean(p)
	}
	c.Storage.Path = resolve(c.Storage.Path)
	c.Log.File = resolve(c.Log.File)
	c.Watch.ProjectsFile = resolve(c.Watch.ProjectsFile)
	c.Watch.InboxFile = resolve(c.Watch.InboxFile)
}

// Validate checks the values a server needs to start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must not be empty")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must be >= 0")
	}
	if c.Server.Burst < 0 {
		return errors.New("server.burst must be >= 0")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path must not be empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
