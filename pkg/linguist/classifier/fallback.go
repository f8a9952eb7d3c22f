package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-enry/go-enry/v2"

	"github.com/stackvity/stack-linguist/pkg/linguist/samples"
)

// ErrUnavailable means no candidate could be offered to the classifier.
// Callers recover by taking the first candidate.
var ErrUnavailable = errors.New("statistical classifier unavailable")

// Kind names a fallback strategy.
type Kind string

const (
	KindSamples Kind = "samples"
	KindEnry    Kind = "enry"
	KindNone    Kind = "none"
)

// Kinds lists every strategy name.
var Kinds = []Kind{KindSamples, KindEnry, KindNone}

// Strategy picks one language among candidates for content.
type Strategy interface {
	Choose(ctx context.Context, path string, candidates []string, content string) (string, error)
}

// Samples trains a fresh NaiveBayes per call with at most one sample per
// candidate and predicts on content. Candidates without a sample are left out.
type Samples struct {
	provider samples.Provider
	logger   *slog.Logger
}

// NewSamples creates the sample-trained strategy.
func NewSamples(provider samples.Provider, loggerHandler slog.Handler) *Samples {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	return &Samples{
		provider: provider,
		logger:   slog.New(loggerHandler).With(slog.String("component", "fallback")),
	}
}

// Choose implements Strategy.
func (s *Samples) Choose(ctx context.Context, path string, candidates []string, content string) (string, error) {
	nb := New()
	for _, lang := range candidates {
		sample, ok, err := s.provider.Sample(ctx, lang)
		if err != nil {
			s.logger.Warn("Sample unavailable", slog.String("language", lang), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			s.logger.Debug("No sample for candidate", slog.String("language", lang))
			continue
		}
		nb.Learn(sample, lang)
	}
	if len(nb.Labels()) == 0 {
		return "", fmt.Errorf("%w: no samples for %v (%s)", ErrUnavailable, candidates, path)
	}
	p := nb.Predict(content)
	s.logger.Debug("Fallback prediction", slog.String("path", path), slog.String("language", p.Label), slog.Float64("proba", p.Scores[0].Proba))
	return p.Label, nil
}

// Enry asks go-enry's pretrained classifier to rank the candidates.
type Enry struct{}

// Choose implements Strategy.
func (Enry) Choose(_ context.Context, path string, candidates []string, content string) (string, error) {
	ranked := enry.GetLanguagesByClassifier(path, []byte(content), candidates)
	if len(ranked) == 0 {
		return "", fmt.Errorf("%w: enry returned no ranking (%s)", ErrUnavailable, path)
	}
	return ranked[0], nil
}

// First always picks the first candidate.
type First struct{}

// Choose implements Strategy.
func (First) Choose(_ context.Context, path string, candidates []string, _ string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates (%s)", ErrUnavailable, path)
	}
	return candidates[0], nil
}
