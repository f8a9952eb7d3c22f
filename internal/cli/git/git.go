// Package git scopes a run to the files git knows about, using go-git so no
// git binary is required.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrGitOperation wraps every failure of this package.
var ErrGitOperation = errors.New("git operation failed")

// Errorf returns a formatted error that wraps ErrGitOperation.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}

// Mode selects which files ListFiles returns.
type Mode string

const (
	// ModeTracked lists every path in the index.
	ModeTracked Mode = "tracked"
	// ModeChanged lists staged or unstaged modifications against HEAD.
	// Untracked and deleted files are left out.
	ModeChanged Mode = "changed"
)

// Client reads repository state through go-git.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(loggerHandler slog.Handler) *Client {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Client{logger: slog.New(loggerHandler).With(slog.String("component", "gitClient"))}
}

// ListFiles returns the files selected by mode that live under root, relative
// to root with forward slashes and sorted. root may be any folder inside a
// worktree.
func (c *Client) ListFiles(ctx context.Context, root string, mode Mode) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, Errorf("failed to get absolute path for '%s': %w", root, err)
	}
	repo, err := git.PlainOpenWithOptions(absRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, Errorf("repository not found at or above '%s': %w", absRoot, err)
		}
		return nil, Errorf("failed to open repository at '%s': %w", absRoot, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, Errorf("failed to get worktree for '%s': %w", absRoot, err)
	}
	prefix, err := filepath.Rel(worktree.Filesystem.Root(), absRoot)
	if err != nil {
		return nil, Errorf("'%s' is outside its worktree: %w", absRoot, err)
	}
	prefix = filepath.ToSlash(prefix)

	var paths []string
	switch mode {
	case ModeTracked:
		idx, err := repo.Storer.Index()
		if err != nil {
			return nil, Errorf("failed to read index: %w", err)
		}
		for _, e := range idx.Entries {
			paths = append(paths, e.Name)
		}
	case ModeChanged:
		status, err := worktree.Status()
		if err != nil {
			return nil, Errorf("failed to get status: %w", err)
		}
		for p, fs := range status {
			if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
				continue
			}
			if fs.Staging == git.Deleted || fs.Worktree == git.Deleted {
				continue
			}
			if fs.Staging != git.Unmodified || fs.Worktree != git.Unmodified {
				paths = append(paths, p)
			}
		}
	default:
		return nil, Errorf("unsupported mode '%s'", mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.ToSlash(p)
		if prefix != "." {
			rest, ok := strings.CutPrefix(p, prefix+"/")
			if !ok {
				continue
			}
			p = rest
		}
		files = append(files, p)
	}
	slices.Sort(files)
	c.logger.Debug("Listed git files", slog.String("root", absRoot), slog.String("mode", string(mode)), slog.Int("count", len(files)))
	return files, nil
}
