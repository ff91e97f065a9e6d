// Package watch re-runs import handlers when watched files change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/inbox-deck/internal/logging"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
	// ErrWatcherClosed is returned by Add after Close.
	ErrWatcherClosed = errors.New("watcher is closed")
)

// DefaultDebounce coalesces the burst of events editors and exporters produce
// for a single save.
const DefaultDebounce = 250 * time.Millisecond

// Handler is called with the path of a file that changed.
type Handler func(ctx context.Context, path string) error

// Watcher watches individual files. It watches their parent directories so
// that files replaced by rename (as most editors save) keep being tracked.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	timers   map[string]*time.Timer
	dirs     map[string]bool
	closed   bool
	// running counts handlers started by a debounce timer.
	running sync.WaitGroup
}

// New creates a Watcher. A debounce of zero uses DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fw,
		debounce: debounce,
		handlers: make(map[string]Handler),
		timers:   make(map[string]*time.Timer),
		dirs:     make(map[string]bool),
	}, nil
}

// Add registers h for path. The file itself need not exist yet, but its
// directory must.
func (w *Watcher) Add(path string, h Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.handlers[abs] = h
	return nil
}

// Run processes filesystem events until ctx is cancelled, then closes the
// watcher. It returns only after in-flight handlers have finished, and always
// returns nil after cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.ForComponent(logging.CompWatch)
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.schedule(ctx, filepath.Clean(event.Name))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// schedule (re)starts the debounce timer for path if it has a handler.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, ok := w.handlers[path]
	if !ok || w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.running.Add(1)
		w.mu.Unlock()
		defer w.running.Done()

		if ctx.Err() != nil {
			return
		}
		log := logging.ForComponent(logging.CompWatch)
		if err := h(ctx, path); err != nil {
			log.Error("watch_reload_failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		log.Info("watch_reloaded", slog.String("path", path))
	})
	w.timers[path] = timer
}

// Close stops pending reloads, waits for running handlers and releases the
// underlying watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.running.Wait()
	return w.fs.Close()
}
