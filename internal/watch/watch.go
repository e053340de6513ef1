// Package watch reruns a batch when files under the project root change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// DefaultDebounce collapses bursts of events (editors writing temp files,
// formatters rewriting a tree) into one trigger.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called with the sorted relative paths that changed since the
// previous call. It runs on the watcher's goroutine; events arriving while it
// runs are collected for the next call.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher monitors a project tree, skipping excluded directories.
type Watcher struct {
	root     string
	excludes []string
	debounce time.Duration
	onChange ChangeFunc
	watcher  *fsnotify.Watcher
}

// New creates a watcher for root. It does not watch anything until Start.
func New(root string, excludes []string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: abs, excludes: excludes, debounce: debounce, onChange: onChange, watcher: fw}, nil
}

// Start adds every non-excluded directory under the root.
func (w *Watcher) Start() error {
	count := 0
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(p); rel != "." && config.IsExcluded(rel, w.excludes) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("Watching project", logfields.Path(w.root), slog.Int("directories", count))
	return nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.relevant(event)
			if !relevant {
				continue
			}
			if event.Has(fsnotify.Create) {
				w.watchIfDir(event.Name, rel)
			}
			slog.Debug("File change detected", logfields.Path(rel), slog.String("op", event.Op.String()))
			pending[rel] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", logfields.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.onChange(ctx, changed)
		}
	}
}

// relevant filters out attribute-only changes and paths in excluded
// directories.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel := w.rel(event.Name)
	if rel == "." || config.IsExcluded(rel, w.excludes) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) watchIfDir(p, rel string) {
	if err := filepath.WalkDir(p, func(sub string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if config.IsExcluded(w.rel(sub), w.excludes) {
			return filepath.SkipDir
		}
		return w.watcher.Add(sub)
	}); err != nil {
		slog.Warn("Failed to watch new directory", logfields.Path(rel), logfields.Error(err))
	}
}

func (w *Watcher) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}
