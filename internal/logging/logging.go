// Package logging configures the process-wide structured logger. Output goes
// to a size-rotated JSON file, to stderr, or both. Packages obtain a logger
// tagged with their component name through ForComponent.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names attached to every record as the "component" attribute.
const (
	CompWeb    = "web"
	CompStore  = "store"
	CompMatch  = "match"
	CompWatch  = "watch"
	CompEvents = "events"
	CompCLI    = "cli"
)

// Config controls where log records go and at which level.
type Config struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Stderr     bool   `toml:"stderr"`
}

var (
	mu     sync.RWMutex
	base   *slog.Logger
	closer io.Closer
)

// ParseLevel converts a level name into an slog.Level. The empty string is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Init installs the logger described by cfg, replacing any previous one.
// With no file configured, records go to stderr as text.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	var (
		handler slog.Handler
		rotator *lumberjack.Logger
	)
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		var w io.Writer = rotator
		if cfg.Stderr {
			w = io.MultiWriter(rotator, os.Stderr)
		}
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	mu.Lock()
	prev := closer
	base = slog.New(handler)
	closer = nil
	if rotator != nil {
		closer = rotator
	}
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// SetOutput routes records to w as JSON at the given level. Intended for tests.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	base = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	mu.Unlock()
}

// ForComponent returns a logger tagged with the given component name. Before
// Init it falls back to slog's default logger.
func ForComponent(name string) *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}

// Shutdown flushes and closes the log file, if any.
func Shutdown() error {
	mu.Lock()
	c := closer
	closer = nil
	mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
