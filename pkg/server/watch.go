package server

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events a single file copy produces.
const DefaultDebounce = 2 * time.Second

// Watcher reports changes in a source directory.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
}

// NewWatcher watches dir (not recursively).
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, watcher: w, logger: logger, debounce: DefaultDebounce}, nil
}

// Run calls onChange once per quiet period after changes, until ctx is
// done. The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	defer w.watcher.Close()

	// nil until a change arrives
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("source changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			fire = time.After(w.debounce)
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.String("dir", w.dir), zap.Error(err))
		}
	}
}
