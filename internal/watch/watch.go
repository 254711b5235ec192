// Package watch reloads the dataset when its SQLite file changes on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last write before a reload.
const DefaultDebounce = 200 * time.Millisecond

// ReloadFunc is called once per burst of changes to the watched file.
type ReloadFunc func(ctx context.Context)

// Watch watches the directory holding dbPath and calls reload after writes to
// the database or its rollback/WAL journal settle. The shared-memory file is
// ignored because readers touch it too. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, dbPath string, debounce time.Duration, logger *slog.Logger, reload ReloadFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("path", abs))

	tracked := map[string]bool{
		abs:              true,
		abs + "-wal":     true,
		abs + "-journal": true,
	}

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			logger.Debug("watcher: dataset changed", slog.String("path", abs))
			reload(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !tracked[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
