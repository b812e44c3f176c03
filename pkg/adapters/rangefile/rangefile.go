// Package rangefile serves the visible range from a small YAML file:
//
//	lo: 10
//	hi: 20
//
// A Watcher reloads the file whenever it changes and exposes the latest
// valid range as a core.RangeProvider. A missing, empty or invalid file
// means no range is available.
package rangefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/churn/pkg/core"
)

// Change reports a reload of the range file.
type Change struct {
	Range core.Range
	// Available is false when the file is gone or holds no valid range.
	Available bool
}

func (c Change) String() string {
	if !c.Available {
		return "visible range cleared"
	}
	return "visible range " + c.Range.String()
}

// Read parses the range file at path.
func Read(path string) (core.Range, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Range{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML range document.
func Parse(data []byte) (core.Range, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Range{}, fmt.Errorf("%w: empty document", core.ErrInvalidRange)
	}
	var r core.Range
	if err := yaml.Unmarshal(data, &r); err != nil {
		return core.Range{}, fmt.Errorf("parse range: %w", err)
	}
	if !r.Valid() {
		return core.Range{}, fmt.Errorf("%w: %s", core.ErrInvalidRange, r)
	}
	return r, nil
}

// Write stores r at path atomically.
func Write(path string, r core.Range) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %s", core.ErrInvalidRange, r)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode range: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// Clear removes the range file. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Watcher keeps the range from a file current.
type Watcher struct {
	path   string
	logger *slog.Logger

	current atomic.Pointer[core.Range]
	changes chan Change

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for reload diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher over path. It does nothing until Start.
func NewWatcher(path string, opts ...Option) *Watcher {
	w := &Watcher{
		path:    filepath.Clean(path),
		logger:  slog.New(slog.DiscardHandler),
		changes: make(chan Change, 16),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Current returns the last range loaded.
func (w *Watcher) Current() (core.Range, bool) {
	r := w.current.Load()
	if r == nil {
		return core.Range{}, false
	}
	return *r, true
}

// Provider returns the watcher as a visible-range oracle.
func (w *Watcher) Provider() core.RangeProvider {
	return w.Current
}

// Changes delivers every reload. Slow readers miss intermediate changes.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start loads the file once and watches its directory until ctx is
// cancelled or Stop is called. The directory must exist.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return fmt.Errorf("range watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic writes replace the file's inode.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = watcher

	w.reload()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		return w.run(ctx, watcher)
	}, lifecycle.WithErrorHandler(func(err error) {
		w.logger.Error("range watcher panic", "error", err)
	}))
	return nil
}

// Stop closes the underlying watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) error {
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("range watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	r, err := Read(w.path)
	switch {
	case err == nil:
		w.current.Store(&r)
		w.logger.Debug("visible range loaded", "path", w.path, "range", r.String())
		w.publish(Change{Range: r, Available: true})
	case errors.Is(err, os.ErrNotExist):
		w.current.Store(nil)
		w.publish(Change{})
	default:
		// Keep serving the last good range while the file is mid-edit.
		w.logger.Warn("ignoring invalid range file", "path", w.path, "error", err)
	}
}

func (w *Watcher) publish(c Change) {
	select {
	case w.changes <- c:
	default:
	}
}
