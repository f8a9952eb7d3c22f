// Package samples supplies reference documents per language for training the
// statistical fallback.
package samples

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrFetch wraps failures to reach a sample source.
var ErrFetch = errors.New("failed to fetch sample")

// Provider returns at most one representative sample for a language.
// ok is false when the source has no sample for it.
type Provider interface {
	Sample(ctx context.Context, language string) (content string, ok bool, err error)
}

// Memory is a fixed in-memory corpus keyed by language name.
type Memory map[string]string

// Sample implements Provider.
func (m Memory) Sample(_ context.Context, language string) (string, bool, error) {
	content, ok := m[language]
	return content, ok, nil
}

// None has no samples.
type None struct{}

// Sample implements Provider.
func (None) Sample(context.Context, string) (string, bool, error) { return "", false, nil }

// Dir reads samples from a local checkout laid out like Linguist's samples
// folder: <Root>/<Language>/<file>. The first regular file in lexical order
// is the sample.
type Dir struct {
	Root string
}

// Sample implements Provider.
func (d Dir) Sample(ctx context.Context, language string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	dir := filepath.Join(d.Root, language)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %s: %v", ErrFetch, language, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", false, fmt.Errorf("%w: %s: %v", ErrFetch, language, err)
		}
		return string(raw), true, nil
	}
	return "", false, nil
}
