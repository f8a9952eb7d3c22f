// Package watch re-runs an action whenever files under a folder change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore lists base-name globs that never trigger a change.
var DefaultIgnore = []string{".git", "*.swp", "*~", ".#*"}

// ChangeHandler receives the de-duplicated, sorted paths of one batch.
// Batches are delivered one at a time.
type ChangeHandler func(ctx context.Context, paths []string)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period that closes a batch.
	Debounce time.Duration
	// Ignore holds extra base-name globs, such as the cache file the
	// handler itself writes.
	Ignore []string
	Logger slog.Handler
}

// Watcher batches file system events under a root folder.
type Watcher struct {
	root     string
	handler  ChangeHandler
	debounce time.Duration
	ignore   []string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// New creates a watcher for root. Nothing is watched until Run.
func New(root string, handler ChangeHandler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: nil change handler")
	}
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(io.Discard, nil)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", root, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	return &Watcher{
		root:     abs,
		handler:  handler,
		debounce: opts.Debounce,
		ignore:   append(slices.Clone(DefaultIgnore), opts.Ignore...),
		logger:   slog.New(opts.Logger).With(slog.String("component", "watch")),
		watcher:  fw,
	}, nil
}

// Run watches until ctx is done and then releases the watcher. It returns
// nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch: %s: %w", w.root, err)
	}
	w.logger.Info("Watching for changes", slog.String("root", w.root), slog.Duration("debounce", w.debounce))

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("Could not watch new folder", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			w.logger.Debug("Change detected", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			w.handler(ctx, paths)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// shouldIgnore reports whether any component of path below the root
// matches an ignore glob.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.ignore {
			if ok, _ := doublestar.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}
