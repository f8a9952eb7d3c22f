// Package classifier holds the statistical fallback used when extraction and
// heuristics leave a file with several candidate languages.
package classifier

import (
	"cmp"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Score is the outcome for one label of a prediction.
type Score struct {
	Label         string
	LogLikelihood float64
	LogProba      float64
	Proba         float64
}

// Prediction is the result of NaiveBayes.Predict. Scores are ordered by
// descending probability; ties keep training order.
type Prediction struct {
	Label  string
	Scores []Score
}

// Tokenizer splits text into word tokens.
type Tokenizer func(text string) []string

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9_()+\s\p{Cyrillic}]+`)

// DefaultTokenizer replaces punctuation with spaces and splits on whitespace.
func DefaultTokenizer(text string) []string {
	return strings.Fields(nonWord.ReplaceAllString(text, " "))
}

// Option configures a NaiveBayes.
type Option func(*NaiveBayes)

// WithAlpha sets the additive smoothing parameter (1 by default).
func WithAlpha(alpha float64) Option {
	return func(nb *NaiveBayes) { nb.alpha = alpha }
}

// WithTokenizer replaces DefaultTokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(nb *NaiveBayes) { nb.tokenizer = t }
}

// WithUniformPrior ignores how many documents each label was trained on.
func WithUniformPrior() Option {
	return func(nb *NaiveBayes) { nb.fitPrior = false }
}

// NaiveBayes is a multinomial Naive Bayes text classifier with Laplace
// smoothing. Instances share no state; it is not safe for concurrent use.
type NaiveBayes struct {
	alpha     float64
	fitPrior  bool
	tokenizer Tokenizer

	labels         []string
	vocabulary     map[string]struct{}
	totalDocuments int
	docCount       map[string]int
	wordCount      map[string]int
	wordFrequency  map[string]map[string]int
}

// New creates an untrained classifier.
func New(opts ...Option) *NaiveBayes {
	nb := &NaiveBayes{
		alpha:         1,
		fitPrior:      true,
		tokenizer:     DefaultTokenizer,
		vocabulary:    make(map[string]struct{}),
		docCount:      make(map[string]int),
		wordCount:     make(map[string]int),
		wordFrequency: make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(nb)
	}
	return nb
}

// Labels lists the trained labels in training order.
func (nb *NaiveBayes) Labels() []string {
	return append([]string(nil), nb.labels...)
}

// Learn adds text as one document of label.
func (nb *NaiveBayes) Learn(text, label string) {
	if _, ok := nb.docCount[label]; !ok {
		nb.labels = append(nb.labels, label)
		nb.wordFrequency[label] = make(map[string]int)
	}
	nb.docCount[label]++
	nb.totalDocuments++
	for token, n := range frequencies(nb.tokenizer(text)) {
		nb.vocabulary[token] = struct{}{}
		nb.wordFrequency[label][token] += n
		nb.wordCount[label] += n
	}
}

// Predict scores text against every trained label. An untrained classifier
// returns an empty Prediction.
func (nb *NaiveBayes) Predict(text string) Prediction {
	if len(nb.labels) == 0 {
		return Prediction{}
	}
	freq := frequencies(nb.tokenizer(text))
	tokens := slices.Sorted(maps.Keys(freq))
	vocab := float64(len(nb.vocabulary))
	scores := make([]Score, len(nb.labels))
	maxLog := math.Inf(-1)
	for i, label := range nb.labels {
		var logL float64
		if nb.fitPrior {
			logL = math.Log(float64(nb.docCount[label]) / float64(nb.totalDocuments))
		} else {
			logL = math.Log(1 / float64(len(nb.labels)))
		}
		denom := float64(nb.wordCount[label]) + nb.alpha*vocab
		for _, token := range tokens {
			p := (float64(nb.wordFrequency[label][token]) + nb.alpha) / denom
			logL += float64(freq[token]) * math.Log(p)
		}
		scores[i] = Score{Label: label, LogLikelihood: logL}
		if logL > maxLog {
			maxLog = logL
		}
	}
	var sum float64
	for i := range scores {
		sum += math.Exp(scores[i].LogLikelihood - maxLog)
	}
	logSum := maxLog + math.Log(sum)
	for i := range scores {
		scores[i].LogProba = scores[i].LogLikelihood - logSum
		scores[i].Proba = math.Exp(scores[i].LogProba)
	}
	slices.SortStableFunc(scores, func(a, b Score) int {
		return cmp.Compare(b.LogLikelihood, a.LogLikelihood)
	})
	return Prediction{Label: scores[0].Label, Scores: scores}
}

func frequencies(tokens []string) map[string]int {
	out := make(map[string]int, len(tokens))
	for _, t := range tokens {
		out[t]++
	}
	return out
}
