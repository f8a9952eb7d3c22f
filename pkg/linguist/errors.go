package linguist

import (
	"errors"

	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
	"github.com/stackvity/stack-linguist/pkg/linguist/tables"
)

// Errors a caller can test with errors.Is. Only ErrConfigLoad and
// ErrConfigValidation (and context errors) are returned by Analyse; the
// others are recovered per file or per pattern and reported through logs,
// hooks and metrics.
var (
	// ErrConfigLoad means a configuration table could not be read or parsed.
	ErrConfigLoad = tables.ErrLoad

	// ErrConfigValidation means Options or Input were rejected before the run started.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrPatternSyntax marks a vendor, generated, ignore, attribute or
	// heuristic pattern that could not be compiled. The pattern is skipped.
	ErrPatternSyntax = pattern.ErrSyntax

	// ErrReadFailed marks a file that could not be read. It is counted as unknown.
	ErrReadFailed = errors.New("failed to read file")

	// ErrClassifierUnavailable means the statistical fallback had nothing to
	// train on; the first candidate is used instead.
	ErrClassifierUnavailable = classifier.ErrUnavailable

	// ErrWalk means the input tree could not be traversed.
	ErrWalk = errors.New("directory walk failed")
)
