package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveProfile(t *testing.T) {
	t.Setenv(EnvProfile, "")
	assert.Equal(t, DefaultProfile, EffectiveProfile(""))
	assert.Equal(t, "work", EffectiveProfile("work"))

	t.Setenv(EnvProfile, "ops")
	assert.Equal(t, "ops", EffectiveProfile(""))
	assert.Equal(t, "work", EffectiveProfile(" work "))
}

func TestProfileDir_UsesHomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvProfile, "")

	dir, err := ProfileDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "profiles", "default"), dir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvListen, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("work")
	require.NoError(t, err)

	dir := filepath.Join(home, "profiles", "work")
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, "127.0.0.1:8430", cfg.Server.Listen)
	assert.Equal(t, filepath.Join(dir, "inbox.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dir, "logs", "inbox-deck.log"), cfg.Log.File)
	assert.Equal(t, 20.0, cfg.Server.RateLimit)
}

func TestLoadFile_OverridesAndRelativePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvListen, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen = "0.0.0.0:9000"
token = "secret"
read_only = true
rate_limit = 5.5

[storage]
path = "db/mail.db"

[log]
level = "debug"

[watch]
projects_file = "projects.toml"
inbox_file = "/var/mail/export.jsonl"
`), 0o644))

	cfg, err := LoadFile(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Equal(t, 5.5, cfg.Server.RateLimit)
	assert.Equal(t, 40, cfg.Server.Burst, "unset keys keep defaults")
	assert.Equal(t, filepath.Join(dir, "db", "mail.db"), cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "projects.toml"), cfg.Watch.ProjectsFile)
	assert.Equal(t, "/var/mail/export.jsonl", cfg.Watch.InboxFile)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvListen, "127.0.0.1:1234")
	t.Setenv(EnvToken, "from-env")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadFile(filepath.Join(dir, "absent.toml"), dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.Server.Listen)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvListen, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvLogLevel, "")

	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[server\nlisten="},
		{"negative rate", "[server]\nrate_limit = -1"},
		{"bad level", "[log]\nlevel = \"chatty\""},
		{"empty listen", "[server]\nlisten = \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadFile(path, dir)
			assert.Error(t, err)
		})
	}
}
