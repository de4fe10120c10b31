package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor or exporter
// produces for one logical write.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a graph export whenever the file changes and hands the
// new document to a callback. A failed reload keeps the previous document.
type Watcher struct {
	path     string
	onChange func(*Export)
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	current *Export
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for path. The file is loaded once up front
// so a broken initial export fails fast.
func NewWatcher(path string, onChange func(*Export), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	exp, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}
	w.current = exp
	return w, nil
}

// Current returns the last successfully loaded document.
func (w *Watcher) Current() *Export {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that replace-by-rename writes are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("Watching graph export", zap.String("path", w.path))

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping graph export watcher")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Graph export changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	exp, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Keeping previous graph export", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = exp
	w.mu.Unlock()

	w.logger.Info("Graph export reloaded",
		zap.Int("nodes", len(exp.Nodes)),
		zap.Int("edges", len(exp.Edges)))
	if w.onChange != nil {
		w.onChange(exp)
	}
}
