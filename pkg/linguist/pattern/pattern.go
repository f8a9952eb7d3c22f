// Package pattern compiles the two pattern dialects used across the pipeline:
// glob-style path patterns and the Ruby-flavoured regexes found in Linguist's
// vendor and heuristic tables.
package pattern

import (
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dlclark/regexp2"
)

// Dialect selects how a pattern literal is interpreted.
type Dialect int

const (
	// Glob patterns use **, * and ? anchored to path segments.
	Glob Dialect = iota
	// Regex patterns support lookaround and backreferences.
	Regex
)

// String implements fmt.Stringer.
func (d Dialect) String() string {
	switch d {
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// DefaultMatchTimeout bounds a single regex evaluation.
const DefaultMatchTimeout = 2 * time.Second

// ErrSyntax is matched by every *SyntaxError.
var ErrSyntax = errors.New("invalid pattern syntax")

// SyntaxError reports a pattern that could not be compiled.
type SyntaxError struct {
	Source  string // where the pattern came from, e.g. "vendor.yml" or "src/.gitattributes:3"
	Pattern string
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: invalid pattern %q: %v", e.Source, e.Pattern, e.Err)
}

// Unwrap exposes both ErrSyntax and the underlying parser error.
func (e *SyntaxError) Unwrap() []error {
	return []error{ErrSyntax, e.Err}
}

// Matcher tests a path or a text against a compiled pattern.
type Matcher interface {
	Match(s string) bool
	String() string
}

// Compile turns a pattern literal into a Matcher. Compilation has no side effects.
func Compile(source, text string, dialect Dialect) (Matcher, error) {
	switch dialect {
	case Glob:
		if !doublestar.ValidatePattern(text) {
			return nil, &SyntaxError{Source: source, Pattern: text, Err: doublestar.ErrBadPattern}
		}
		return globMatcher(text), nil
	case Regex:
		converted := ConvertRuby(text)
		re, err := regexp2.Compile(converted, regexp2.Multiline)
		if err != nil {
			return nil, &SyntaxError{Source: source, Pattern: text, Err: err}
		}
		re.MatchTimeout = DefaultMatchTimeout
		return &regexMatcher{re: re, literal: text}, nil
	default:
		return nil, &SyntaxError{Source: source, Pattern: text, Err: fmt.Errorf("unknown dialect %s", dialect)}
	}
}

type globMatcher string

func (g globMatcher) Match(s string) bool {
	ok, err := doublestar.Match(string(g), s)
	return err == nil && ok
}

func (g globMatcher) String() string { return string(g) }

type regexMatcher struct {
	re      *regexp2.Regexp
	literal string
}

// Match reports whether the pattern occurs anywhere in s. A timed out
// evaluation counts as no match.
func (r *regexMatcher) Match(s string) bool {
	ok, err := r.re.MatchString(s)
	return err == nil && ok
}

func (r *regexMatcher) String() string { return r.literal }
