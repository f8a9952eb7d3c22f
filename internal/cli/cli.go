// Package cli runs analyses for the stack-linguist command: it wires the
// settings to the library, drives the progress UI and prints the report.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackvity/stack-linguist/internal/cli/config"
	"github.com/stackvity/stack-linguist/internal/cli/git"
	"github.com/stackvity/stack-linguist/internal/cli/hooks"
	"github.com/stackvity/stack-linguist/internal/cli/report"
	"github.com/stackvity/stack-linguist/internal/cli/telemetry"
	"github.com/stackvity/stack-linguist/internal/cli/ui"
	"github.com/stackvity/stack-linguist/internal/cli/watch"
	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
	"github.com/stackvity/stack-linguist/pkg/linguist/metrics"
	"github.com/stackvity/stack-linguist/pkg/linguist/samples"
	"github.com/stackvity/stack-linguist/pkg/linguist/tables"
)

// ToolName appears in the text report header.
const ToolName = "stack-linguist"

type runner struct {
	settings config.Settings
	logger   *slog.Logger
	opts     linguist.Options
	stdout   io.Writer
	stderr   io.Writer
}

// Run performs one analysis and prints its report. In watch mode it then
// re-runs after every batch of changes until ctx is cancelled.
func Run(ctx context.Context, s config.Settings, logger *slog.Logger, stdout, stderr io.Writer) error {
	if s.Watch {
		// Each re-run prints a report, which the progress UI would overwrite.
		s.TUIEnabled = false
	}

	tracer, shutdown, err := telemetry.Setup(s.Trace, stderr, s.AppVersion)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	opts, cleanup, err := buildOptions(ctx, s, logger, tracer)
	if err != nil {
		return err
	}
	defer cleanup()

	r := &runner{settings: s, logger: logger, opts: opts, stdout: stdout, stderr: stderr}
	input := s.Input()
	if err := r.runAndReport(ctx, input); err != nil {
		return err
	}
	if !s.Watch {
		return nil
	}
	return r.watch(ctx, input)
}

// buildOptions resolves the dependencies shared by every run of this
// invocation. The returned cleanup releases them.
func buildOptions(ctx context.Context, s config.Settings, logger *slog.Logger, tracer trace.Tracer) (linguist.Options, func(), error) {
	opts := s.Options
	opts.Tracer = tracer
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Cleanup failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.DataDir != "" {
		set, err := tables.LoadDir(ctx, s.DataDir)
		if err != nil {
			return opts, cleanup, err
		}
		opts.Tables = set
		logger.Debug("Loaded tables", slog.String("dir", s.DataDir), slog.Int("languages", set.Languages.Len()))
	}

	switch s.Samples {
	case "":
	case config.SamplesGitHub:
		gh := samples.NewGitHub(samples.GitHubOptions{Token: s.GitHubToken, Logger: s.Logger})
		cached, err := samples.OpenBadgerCache(samplesCacheDir(s, logger), gh, 0, s.Logger)
		if err != nil {
			return opts, cleanup, err
		}
		closers = append(closers, cached.Close)
		opts.Samples = cached
	default:
		opts.Samples = samples.Dir{Root: s.Samples}
	}

	if s.MetricsFile != "" {
		opts.Metrics = metrics.New()
	}
	return opts, cleanup, nil
}

// samplesCacheDir returns the configured folder, else a folder under the
// user cache directory, else "" for an in-memory cache.
func samplesCacheDir(s config.Settings, logger *slog.Logger) string {
	if s.SamplesCacheDir != "" {
		return s.SamplesCacheDir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		logger.Debug("No user cache directory, keeping samples in memory", slog.String("error", err.Error()))
		return ""
	}
	return filepath.Join(dir, ToolName, "samples")
}

func (r *runner) runAndReport(ctx context.Context, input linguist.Input) error {
	results, err := r.analyse(ctx, input)
	if r.opts.Metrics != nil {
		if werr := r.opts.Metrics.WriteTextfile(r.settings.MetricsFile); werr != nil {
			r.logger.Warn("Failed to write metrics", slog.String("path", r.settings.MetricsFile), slog.String("error", werr.Error()))
		}
	}
	if err != nil {
		return err
	}
	return r.report(results)
}

func (r *runner) analyse(ctx context.Context, input linguist.Input) (*linguist.Results, error) {
	if r.settings.GitMode != "" {
		files, err := r.gitFiles(ctx, input.Root)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			r.logger.Info("No files selected by git", slog.String("mode", r.settings.GitMode))
			return linguist.NewResults(), nil
		}
		input.Files = files
	}

	opts := r.opts
	if r.settings.CacheFile != "" {
		opts.Cache = cache.NewFileManager(r.settings.Logger, r.settings.AppVersion, r.settings.CacheFormat)
		opts.CacheFilePath = r.settings.CacheFile
	}

	if !r.settings.TUIEnabled {
		opts.EventHooks = hooks.NewCLIHooks(r.logger, false, nil)
		return linguist.Analyse(ctx, input, opts)
	}
	return r.analyseWithTUI(ctx, input, opts)
}

// analyseWithTUI runs the engine in the background while the progress UI
// owns the terminal. Quitting the UI cancels the run.
func (r *runner) analyseWithTUI(ctx context.Context, input linguist.Input, opts linguist.Options) (*linguist.Results, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(ui.NewModel(r.settings.AppVersion), tea.WithOutput(r.stderr), tea.WithContext(runCtx))
	opts.EventHooks = hooks.NewCLIHooks(r.logger, true, prog)
	// Only errors reach the terminal while the UI is drawing.
	opts.Logger = slog.NewTextHandler(r.stderr, &slog.HandlerOptions{Level: slog.LevelError})

	var (
		results *linguist.Results
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		results, runErr = linguist.Analyse(runCtx, input, opts)
		if runErr != nil {
			prog.Send(ui.RunFailedMsg{Err: runErr})
		}
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		r.logger.Warn("Progress display failed", slog.String("error", err.Error()))
	}
	cancel()
	<-done
	return results, runErr
}

func (r *runner) gitFiles(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access '%s': %v", linguist.ErrConfigValidation, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: --git needs a folder, '%s' is a file", linguist.ErrConfigValidation, root)
	}
	files, err := git.NewClient(r.settings.Logger).ListFiles(ctx, root, git.Mode(r.settings.GitMode))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Files selected by git", slog.String("mode", r.settings.GitMode), slog.Int("files", len(files)))
	return files, nil
}

func (r *runner) report(results *linguist.Results) error {
	switch {
	case r.settings.TreeSet:
		return report.WriteTree(r.stdout, results, r.settings.Tree)
	case r.settings.JSON:
		return report.WriteJSON(r.stdout, results)
	default:
		return report.WriteText(r.stdout, results, ToolName)
	}
}

func (r *runner) watch(ctx context.Context, input linguist.Input) error {
	root := input.Root
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		root = filepath.Dir(root)
	}
	var ignore []string
	for _, written := range []string{r.settings.CacheFile, r.settings.MetricsFile} {
		if written != "" {
			// Atomic writers create siblings named after the target.
			ignore = append(ignore, filepath.Base(written)+"*")
		}
	}

	w, err := watch.New(root, func(ctx context.Context, paths []string) {
		r.logger.Info("Changes detected, re-running", slog.Int("changes", len(paths)))
		if err := r.runAndReport(ctx, input); err != nil && ctx.Err() == nil {
			r.logger.Error("Run failed", slog.String("error", err.Error()))
		}
	}, watch.Options{Debounce: r.settings.WatchDebounce, Ignore: ignore, Logger: r.settings.Logger})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
