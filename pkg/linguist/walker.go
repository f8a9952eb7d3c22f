package linguist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stackvity/stack-linguist/pkg/linguist/ignore"
	"github.com/stackvity/stack-linguist/pkg/linguist/metrics"
	"github.com/stackvity/stack-linguist/pkg/util"
)

// job is one file handed to the worker pool. The resolver decision is taken
// at dispatch time so workers never read resolver state.
type job struct {
	rel      string
	abs      string
	decision ignore.Decision
}

// Walker discovers files, applies the resolver top-down and dispatches the
// surviving files to the worker pool.
type Walker struct {
	root         string
	files        []string
	resolver     *ignore.Resolver
	out          chan<- job
	hooks        Hooks
	metrics      *metrics.Collector
	logger       *slog.Logger
	dispatchWarn time.Duration
}

func newWalker(root string, files []string, resolver *ignore.Resolver, out chan<- job, opts Options) *Walker {
	return &Walker{
		root:         root,
		files:        files,
		resolver:     resolver,
		out:          out,
		hooks:        opts.EventHooks,
		metrics:      opts.Metrics,
		logger:       slog.New(opts.Logger).With(slog.String("component", "walker")),
		dispatchWarn: opts.DispatchWarnThreshold,
	}
}

// Walk traverses the input and closes the output channel when done.
func (w *Walker) Walk(ctx context.Context) error {
	defer close(w.out)
	var err error
	if len(w.files) == 0 {
		w.logger.Debug("Starting directory walk", slog.String("path", w.root))
		w.enter(".")
		err = w.walkTree(ctx, w.root)
	} else {
		w.logger.Debug("Classifying explicit file list", slog.Int("entries", len(w.files)))
		err = w.walkList(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrWalk, err)
	}
	return nil
}

func (w *Walker) walkTree(ctx context.Context, start string) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type()&fs.ModeSymlink != 0 {
			w.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		rel, relErr := util.RelSlash(w.root, path)
		if relErr != nil {
			w.logger.Warn("Could not calculate relative path", slog.String("path", path), slog.String("error", relErr.Error()))
			return nil
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if decision := w.resolver.Decide(rel, true); decision.Ignored {
				w.ignored(rel, decision)
				return filepath.SkipDir
			}
			w.enter(rel)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		w.discovered(rel)
		return w.dispatch(ctx, job{rel: rel, abs: path, decision: w.resolver.Decide(rel, false)})
	})
}

// walkList resolves each listed entry through its ancestors first, so rules
// from parent folders apply exactly as in a full walk.
func (w *Walker) walkList(ctx context.Context) error {
	for _, entry := range w.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs := entry
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(w.root, entry)
		}
		info, err := os.Stat(abs)
		if err != nil {
			w.logger.Debug("Skipping missing input", slog.String("path", entry), slog.String("error", err.Error()))
			continue
		}
		rel, err := util.RelSlash(w.root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			// Outside the root no folder rules apply; key by the path as given.
			rel = filepath.ToSlash(filepath.Clean(entry))
			if info.IsDir() {
				w.logger.Warn("Skipping folder outside the analysed root", slog.String("path", entry))
				continue
			}
			w.discovered(rel)
			if err := w.dispatch(ctx, job{rel: rel, abs: abs, decision: w.resolver.Decide(rel, false)}); err != nil {
				return err
			}
			continue
		}
		if info.IsDir() {
			if !w.enterFolderChain(rel) {
				continue
			}
			if err := w.walkTree(ctx, abs); err != nil {
				return err
			}
			continue
		}
		w.discovered(rel)
		decision, rerr := w.resolver.ResolveFile(rel)
		if rerr != nil {
			w.logger.Warn("Problems reading folder rules", slog.String("path", rel), slog.String("error", rerr.Error()))
		}
		if err := w.dispatch(ctx, job{rel: rel, abs: abs, decision: decision}); err != nil {
			return err
		}
	}
	return nil
}

// enterFolderChain enters every folder from the root down to the folder
// rel. It returns false when one of them is ignored.
func (w *Walker) enterFolderChain(rel string) bool {
	folders := util.Ancestors(rel)
	if rel != "." {
		folders = append(folders, rel)
	}
	for _, f := range folders {
		if f != "." {
			if decision := w.resolver.Decide(f, true); decision.Ignored {
				w.ignored(f, decision)
				return false
			}
		}
		w.enter(f)
	}
	return true
}

func (w *Walker) enter(rel string) {
	if err := w.resolver.EnterFolder(rel); err != nil {
		w.logger.Warn("Problems reading folder rules", slog.String("folder", rel), slog.String("error", err.Error()))
	}
}

func (w *Walker) discovered(rel string) {
	if err := w.hooks.OnFileDiscovered(rel); err != nil {
		w.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

func (w *Walker) ignored(rel string, d ignore.Decision) {
	w.logger.Debug("Path ignored", slog.String("path", rel), slog.String("origin", string(d.Origin)), slog.String("pattern", d.Pattern))
	w.metrics.PathIgnored(string(d.Origin))
	msg := fmt.Sprintf("Ignored by %s pattern %s", d.Origin, d.Pattern)
	if err := w.hooks.OnFileStatusUpdate(rel, StatusIgnored, msg, 0); err != nil {
		w.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

func (w *Walker) dispatch(ctx context.Context, j job) error {
	if j.decision.Ignored {
		w.ignored(j.rel, j.decision)
		return nil
	}
	return w.dispatchDecided(ctx, j)
}

// dispatchDecided sends j, warning once if the pool stays busy longer than
// the configured threshold.
func (w *Walker) dispatchDecided(ctx context.Context, j job) error {
	timer := time.NewTimer(w.dispatchWarn)
	defer timer.Stop()
	select {
	case w.out <- j:
		return nil
	case <-timer.C:
		w.logger.Warn("Worker queue full, dispatch blocked", slog.String("path", j.rel), slog.Duration("threshold", w.dispatchWarn))
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case w.out <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
