package config

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configPath on write and hands the result to onChange,
// debounced the same way a directory-watching detector coalesces a burst of
// filesystem events into one. Editors commonly replace a file with a
// rename-into-place rather than an in-place write, so both Write and Create
// trigger a reload.
//
// Only the handful of fields a running controller can safely pick up
// without a restart are meant to be applied from onChange — log
// level/format and the reconciler/state-sync tunables. Fields a live
// process can't safely rebind (the database DSN, the messaging addresses)
// should be left alone by the caller even though a reload delivers them.
type Watcher struct {
	configPath string
	debounce   time.Duration
}

// NewWatcher builds a Watcher for configPath with the given debounce window
// (500ms if zero).
func NewWatcher(configPath string, debounce time.Duration) *Watcher {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{configPath: configPath, debounce: debounce}
}

// Start watches configPath until ctx is done, calling onChange with each
// successfully reloaded Config. Reload errors are logged and skipped rather
// than propagated, so a momentarily invalid file (mid-write) never kills the
// watch loop.
func (w *Watcher) Start(ctx context.Context, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(w.configPath); err != nil {
		watcher.Close()
		return err
	}

	go w.run(ctx, watcher, onChange)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher, onChange func(Config)) {
	defer watcher.Close()

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			pending = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config", "watcher error on %s: %v", w.configPath, err)

		case <-pending:
			pending = nil
			cfg, err := Load(w.configPath)
			if err != nil {
				logging.Warn("Config", "reload of %s failed, keeping previous configuration: %v", w.configPath, err)
				continue
			}
			logging.Info("Config", "reloaded configuration from %s", w.configPath)
			onChange(cfg)
		}
	}
}
