package linguist

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
	"github.com/stackvity/stack-linguist/pkg/linguist/encoding"
	"github.com/stackvity/stack-linguist/pkg/linguist/language"
)

// classify runs the per-file pipeline: read, binary check, cache lookup,
// signal extraction, heuristics and the statistical fallback.
func (e *Engine) classify(ctx context.Context, j job) outcome {
	ctx, span := e.tracer.Start(ctx, "linguist.classify", trace.WithAttributes(attribute.String("path", j.rel)))
	defer span.End()
	start := time.Now()
	o := outcome{path: j.rel}

	info, err := os.Stat(j.abs)
	if err != nil {
		return e.readFailed(span, o, err, start)
	}
	o.size = info.Size()
	raw, err := encoding.ReadFile(j.abs, e.opts.MaxFileBytes)
	if err != nil {
		return e.readFailed(span, o, err, start)
	}

	if !e.opts.KeepBinary && !j.decision.ForceText {
		if j.decision.ForceBinary || e.reader.IsBinary(j.rel, raw) {
			o.binary = true
			span.SetAttributes(attribute.Bool("binary", true))
			e.status(j.rel, StatusBinary, "Skipped binary file", start)
			return o
		}
	}

	key := cache.Key{
		ModTime:     info.ModTime(),
		ContentHash: cache.HashContent(raw),
		ConfigHash:  e.configHash,
		Override:    j.decision.Override,
	}
	if entry, hit := e.cache.Check(j.rel, key); hit {
		e.metrics.CacheLookup(true)
		o.language, o.stage, o.cached = entry.Language, language.Stage(entry.Stage), true
		span.SetAttributes(attribute.String("language", o.language), attribute.Bool("cached", true))
		e.status(j.rel, StatusCached, o.language, start)
		return o
	}
	e.metrics.CacheLookup(false)

	text, _, _, decErr := e.reader.DetectAndDecode(raw)
	if decErr != nil {
		e.logger.Debug("Decoding failed, using raw bytes", slog.String("path", j.rel), slog.String("error", decErr.Error()))
	}
	content := string(text)

	o.language, o.stage = e.resolve(ctx, j, content)
	e.metrics.FileClassified(string(o.stage))
	span.SetAttributes(attribute.String("language", o.language), attribute.String("stage", string(o.stage)))

	if err := e.cache.Update(j.rel, key, o.language, string(o.stage)); err != nil {
		e.logger.Warn("Cache update failed", slog.String("path", j.rel), slog.String("error", err.Error()))
	}
	if o.language == "" {
		e.status(j.rel, StatusUnknown, "No language matched", start)
	} else {
		e.status(j.rel, StatusClassified, fmt.Sprintf("%s (%s)", o.language, o.stage), start)
	}
	return o
}

// resolve narrows the candidate set to one label.
func (e *Engine) resolve(ctx context.Context, j job, content string) (string, language.Stage) {
	var firstLine string
	if e.opts.CheckShebang {
		firstLine = encoding.FirstLine([]byte(content))
	}
	ex := e.extractor.Extract(j.rel, firstLine, j.decision.Override)
	first, ok := ex.Candidates.First()
	if !ok {
		return "", language.StageNone
	}
	if ex.Terminal() || ex.Candidates.Len() == 1 {
		return first, ex.Stage
	}

	if e.opts.CheckHeuristics && e.disambiguator.Applies(j.rel) {
		if lang, ok := e.disambiguator.Disambiguate(j.rel, &ex.Candidates, content); ok {
			return lang, language.StageHeuristics
		}
	}
	lang, err := e.strategy.Choose(ctx, j.rel, ex.Candidates.Names(), content)
	switch {
	case err == nil && ex.Candidates.Contains(lang):
		return lang, language.StageClassifier
	case err == nil:
		e.logger.Warn("Fallback chose a non-candidate, using first candidate", slog.String("path", j.rel), slog.String("language", lang))
	case errors.Is(err, classifier.ErrUnavailable):
		e.metrics.FallbackUnavailable()
		e.logger.Debug("Statistical fallback unavailable", slog.String("path", j.rel), slog.String("error", err.Error()))
	default:
		e.logger.Warn("Statistical fallback failed", slog.String("path", j.rel), slog.String("error", err.Error()))
	}
	return first, language.StageFallback
}

func (e *Engine) readFailed(span trace.Span, o outcome, err error, start time.Time) outcome {
	o.err = fmt.Errorf("%w: %s: %w", ErrReadFailed, o.path, err)
	o.stage = language.StageNone
	span.RecordError(o.err)
	span.SetStatus(codes.Error, "read failed")
	e.logger.Warn("Could not read file, counting as unknown", slog.String("path", o.path), slog.String("error", err.Error()))
	e.status(o.path, StatusFailed, o.err.Error(), start)
	return o
}

func (e *Engine) status(path string, s Status, msg string, start time.Time) {
	if err := e.opts.EventHooks.OnFileStatusUpdate(path, s, msg, time.Since(start)); err != nil {
		e.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// configHash covers every option that changes how content maps to a label.
func configHash(opts Options, tablesOrigin string, strategy classifier.Strategy) string {
	h := sha256.New()
	add := func(h hash.Hash, key, value string) {
		h.Write([]byte(key + ":" + value + ";"))
	}
	ignored := make([]string, len(opts.IgnoredLanguages))
	for i, l := range opts.IgnoredLanguages {
		ignored[i] = strings.ToLower(l)
	}
	slices.Sort(ignored)

	add(h, "Tables", tablesOrigin)
	add(h, "IgnoredLanguages", strings.Join(ignored, ","))
	add(h, "ChildLanguages", strconv.FormatBool(opts.ChildLanguages))
	add(h, "CheckShebang", strconv.FormatBool(opts.CheckShebang))
	add(h, "CheckHeuristics", strconv.FormatBool(opts.CheckHeuristics))
	add(h, "Quick", strconv.FormatBool(opts.Quick))
	add(h, "Strategy", fmt.Sprintf("%T", strategy))
	add(h, "DefaultEncoding", opts.DefaultEncoding)
	add(h, "MaxFileBytes", strconv.FormatInt(opts.MaxFileBytes, 10))
	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = "dev"
	}
	add(h, "AppVersion", appVersion)
	return fmt.Sprintf("%x", h.Sum(nil))
}
