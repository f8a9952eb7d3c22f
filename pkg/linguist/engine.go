package linguist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
	"github.com/stackvity/stack-linguist/pkg/linguist/encoding"
	"github.com/stackvity/stack-linguist/pkg/linguist/heuristics"
	"github.com/stackvity/stack-linguist/pkg/linguist/ignore"
	"github.com/stackvity/stack-linguist/pkg/linguist/language"
	"github.com/stackvity/stack-linguist/pkg/linguist/metrics"
	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
	"github.com/stackvity/stack-linguist/pkg/linguist/samples"
	"github.com/stackvity/stack-linguist/pkg/linguist/tables"
)

// Engine holds everything one run needs. Build it with NewEngine; an Engine
// is single-use.
type Engine struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	root  string
	files []string

	table         *language.Table
	resolver      *ignore.Resolver
	extractor     *language.Extractor
	disambiguator *heuristics.Disambiguator
	strategy      classifier.Strategy
	reader        encoding.Handler
	cache         cache.Manager
	metrics       *metrics.Collector
	configHash    string

	fatal    atomic.Bool
	fatalErr atomic.Value
}

// NewEngine validates opts and input, loads the tables and compiles every
// pattern. Malformed patterns are skipped with a warning; missing tables or
// invalid options are returned as errors.
func NewEngine(input Input, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.effective()
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	root, files, err := normaliseInput(input)
	if err != nil {
		return nil, err
	}

	set := opts.Tables
	if set == nil {
		if set, err = tables.Default(); err != nil {
			return nil, err
		}
	}
	table := set.Languages
	if len(opts.IgnoredLanguages) > 0 {
		if table, err = table.Without(opts.IgnoredLanguages); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
		}
	}

	patterns, err := pattern.NewCache(0)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern cache: %v", ErrConfigValidation, err)
	}
	onPatternError := func(err error) {
		var se *pattern.SyntaxError
		source := "unknown"
		if errors.As(err, &se) {
			file, _, _ := strings.Cut(se.Source, ":")
			source = path.Base(file)
		}
		opts.Metrics.PatternError(source)
	}

	resolver, err := ignore.New(root, ignore.Options{
		Vendor:          set.Vendor,
		Generated:       set.Generated,
		IgnoredFiles:    opts.IgnoredFiles,
		KeepVendored:    opts.KeepVendored,
		CheckIgnored:    opts.CheckIgnored,
		CheckAttributes: opts.CheckAttributes,
		Table:           table,
		Cache:           patterns,
		Logger:          opts.Logger,
		OnPatternError:  onPatternError,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	var rules *heuristics.Ruleset
	if opts.CheckHeuristics {
		var errs []error
		rules, errs = heuristics.Compile(set.Heuristics, patterns)
		for _, err := range errs {
			logger.Warn("Skipping heuristic rule", slog.String("error", err.Error()))
			onPatternError(err)
		}
	}

	reader := opts.Reader
	if reader == nil {
		reader = encoding.NewHandler(opts.DefaultEncoding)
	}
	cacheMgr := opts.Cache
	if cacheMgr == nil {
		cacheMgr = cache.NoOp{}
	} else if opts.CacheFilePath != "" {
		if err := cacheMgr.Load(opts.CacheFilePath); err != nil {
			logger.Warn("Cache unavailable, continuing without it", slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
			cacheMgr = cache.NoOp{}
		}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	strategy := newStrategy(opts)

	e := &Engine{
		opts:          opts,
		logger:        logger,
		tracer:        tracer,
		root:          root,
		files:         files,
		table:         table,
		resolver:      resolver,
		extractor:     language.NewExtractor(table, opts.ChildLanguages, opts.CheckShebang),
		disambiguator: heuristics.NewDisambiguator(rules, table, opts.ChildLanguages),
		strategy:      strategy,
		reader:        reader,
		cache:         cacheMgr,
		metrics:       opts.Metrics,
		configHash:    configHash(opts, set.Origin, strategy),
	}
	logger.Debug("Engine ready",
		slog.String("root", root),
		slog.String("tables", set.Origin),
		slog.Int("languages", table.Len()),
		slog.Int("concurrency", opts.Concurrency),
		slog.Bool("quick", opts.Quick))
	return e, nil
}

func newStrategy(opts Options) classifier.Strategy {
	if opts.Strategy != nil {
		return opts.Strategy
	}
	switch opts.Fallback {
	case classifier.KindEnry:
		return classifier.Enry{}
	case classifier.KindNone:
		return classifier.First{}
	default:
		provider := opts.Samples
		if provider == nil {
			provider = samples.None{}
		}
		return classifier.NewSamples(provider, opts.Logger)
	}
}

// normaliseInput makes Root absolute and turns a file root into a
// one-entry file list under its folder.
func normaliseInput(input Input) (string, []string, error) {
	root := input.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", nil, fmt.Errorf("%w: input root %q: %v", ErrConfigValidation, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, fmt.Errorf("%w: cannot access input root %q: %w", ErrConfigValidation, root, err)
	}
	if !info.IsDir() {
		if len(input.Files) > 0 {
			return "", nil, fmt.Errorf("%w: input root %q is a file but a file list was given", ErrConfigValidation, root)
		}
		return filepath.Dir(abs), []string{abs}, nil
	}
	return abs, input.Files, nil
}

// Run classifies the input. It returns complete results or an error, never
// partial results.
func (e *Engine) Run(ctx context.Context) (results *Results, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "linguist.Analyse", trace.WithAttributes(
		attribute.String("root", e.root),
		attribute.Int("concurrency", e.opts.Concurrency)))
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during run", slog.Any("panicValue", r))
			results, err = nil, fmt.Errorf("panic during run: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	jobs := make(chan job, e.opts.Concurrency)
	outcomes := make(chan outcome, e.opts.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Concurrency; i++ {
		wg.Add(1)
		go e.worker(ctx, cancel, &wg, i, jobs, outcomes)
	}

	agg := newAggregator(e.table, e.opts.ChildLanguages, e.opts.Categories, e.metrics)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for o := range outcomes {
			agg.add(o)
		}
	}()

	walker := newWalker(e.root, e.files, e.resolver, jobs, e.opts)
	walkErr := walker.Walk(ctx)
	if walkErr != nil {
		cancel()
	}
	wg.Wait()
	close(outcomes)
	<-aggDone

	switch {
	case e.fatal.Load():
		if v := e.fatalErr.Load(); v != nil {
			return nil, v.(error)
		}
		return nil, errors.New("run stopped after a worker failure")
	case walkErr != nil:
		e.logger.Error("Directory walk failed", slog.String("error", walkErr.Error()))
		return nil, walkErr
	case ctx.Err() != nil:
		e.logger.Info("Run cancelled", slog.String("reason", ctx.Err().Error()))
		return nil, ctx.Err()
	}

	results = agg.finish()
	if e.opts.CacheFilePath != "" {
		if perr := e.cache.Persist(e.opts.CacheFilePath); perr != nil {
			e.logger.Warn("Failed to persist cache", slog.String("path", e.opts.CacheFilePath), slog.String("error", perr.Error()))
		}
	}
	duration := time.Since(start)
	e.metrics.RunFinished(duration)
	span.SetAttributes(
		attribute.Int("files", results.Files.Count),
		attribute.Int("languages", results.Languages.Count),
		attribute.Int("binary_skipped", agg.binary))
	e.logger.Info("Run finished",
		slog.Duration("duration", duration),
		slog.Int("files", results.Files.Count),
		slog.Int("languages", results.Languages.Count),
		slog.Int("unknown", results.Unknown.Count),
		slog.Int("binary_skipped", agg.binary),
		slog.Int("filtered", agg.dropped))
	if hookErr := e.opts.EventHooks.OnRunComplete(results, duration); hookErr != nil {
		e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
	}
	return results, nil
}

func (e *Engine) worker(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, id int, jobs <-chan job, outcomes chan<- outcome) {
	logger := e.logger.With(slog.Int("workerID", id))
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in worker", slog.Any("panicValue", r))
			if e.fatal.CompareAndSwap(false, true) {
				e.fatalErr.Store(fmt.Errorf("worker panic: %v", r))
			}
			cancel()
		}
	}()

	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			e.status(j.rel, StatusProcessing, "", time.Now())
			o := e.classify(ctx, j)
			select {
			case outcomes <- o:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Analyse classifies every file of input and aggregates the breakdown.
func Analyse(ctx context.Context, input Input, opts Options) (*Results, error) {
	e, err := NewEngine(input, opts)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}
