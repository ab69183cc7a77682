package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is the quiet period a Watcher waits for after the
// last detected write before invoking its reload callback, absorbing the
// burst of events a single save can produce.
const DefaultReloadDebounce = 200 * time.Millisecond

// Watcher watches a single configuration file for writes and invokes a
// callback after a debounce period, so editors that write a file in
// several small operations only trigger one reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher opens an fsnotify watch on path. path must already exist.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config file %q: %w", path, err)
	}

	return &Watcher{watcher: fw, path: path, debounce: DefaultReloadDebounce, logger: logger}, nil
}

// Watch blocks, invoking onReload at most once per debounce window after a
// write or rename event on the watched file. It returns when ctx is
// cancelled. Most editors replace the file via rename-into-place, so both
// Write and Rename events are treated as reload triggers.
func (w *Watcher) Watch(ctx context.Context, onReload func()) error {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("config watcher events channel closed")
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}

			w.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, onReload)

			// Editors that rename-into-place replace the inode fsnotify
			// was watching; re-add the path so later writes still fire.
			if event.Op&fsnotify.Rename != 0 {
				_ = w.watcher.Add(w.path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("config watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}
