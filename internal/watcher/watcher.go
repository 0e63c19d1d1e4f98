// Package watcher triggers a callback when files under a directory change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when none is given.
const DefaultDebounce = 500 * time.Millisecond

// Watcher coalesces bursts of file events into single OnChange calls.
type Watcher struct {
	dir      string
	debounce time.Duration
	// Filter selects the files whose changes matter; nil accepts every file.
	Filter func(path string) bool
	// OnChange runs after the directory has been quiet for the debounce window.
	OnChange func(ctx context.Context) error
	logger   *zap.Logger
}

// New returns a watcher for dir.
func New(dir string, debounce time.Duration, onChange func(ctx context.Context) error, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, debounce: debounce, OnChange: onChange, logger: logger.Named("watcher")}
}

// Run watches until ctx is cancelled. Errors returned by OnChange are logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	if w.OnChange == nil {
		return errors.New("watcher: OnChange is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fsw, ev) {
				continue
			}
			w.logger.Debug("file event", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := w.OnChange(ctx); err != nil {
				w.logger.Error("change handler failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) relevant(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return true
		}
	}
	// a removed or renamed path can no longer be inspected and may have been a directory
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return true
	}
	return w.Filter == nil || w.Filter(ev.Name)
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
