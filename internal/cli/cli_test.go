package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/stack-linguist/internal/cli"
	"github.com/stackvity/stack-linguist/internal/cli/config"
	"github.com/stackvity/stack-linguist/internal/cli/report"
	"github.com/stackvity/stack-linguist/internal/testutil"
	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
)

// syncBuffer is written by the watch loop while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"main.go":             "package main\n\nfunc main() {}\n",
		"docs/README.md":      "# Title\n",
		"vendor/lib/x.go":     "package lib\n",
		"unknown":             "MIT\n",
		"assets/data.unknown": "??\n",
	})
	return root
}

func settings(paths ...string) config.Settings {
	opts := linguist.DefaultOptions()
	opts.Logger = slog.NewTextHandler(io.Discard, nil)
	opts.Concurrency = 2
	return config.Settings{
		Options:       opts,
		Paths:         paths,
		CacheFormat:   cache.FormatGob,
		WatchDebounce: 100 * time.Millisecond,
	}
}

func run(t *testing.T, s config.Settings) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := cli.Run(context.Background(), s, slog.New(s.Logger), &stdout, &stderr)
	return stdout.String(), err
}

func decode(t *testing.T, out string) linguist.Results {
	t.Helper()
	var results linguist.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	return results
}

func TestRunTextReport(t *testing.T) {
	out, err := run(t, settings(fixture(t)))
	require.NoError(t, err)

	assert.Contains(t, out, "files with stack-linguist")
	assert.Contains(t, out, "Language analysis results:")
	assert.Contains(t, out, " Go ")
	assert.Contains(t, out, " Markdown ")
	assert.Contains(t, out, "'unknown': 4 B")
	assert.Contains(t, out, "'.unknown': 3 B")
}

func TestRunJSONReport(t *testing.T) {
	s := settings(fixture(t))
	s.JSON = true
	out, err := run(t, s)
	require.NoError(t, err)

	results := decode(t, out)
	lang, ok := results.Files.Language("main.go")
	require.True(t, ok)
	assert.Equal(t, "Go", lang)
	_, ok = results.Files.Language("vendor/lib/x.go")
	assert.False(t, ok, "vendored files are not counted")
	assert.Equal(t, 4, results.Files.Count)
}

func TestRunTreeReport(t *testing.T) {
	testCases := []struct {
		name     string
		tree     string
		expected string
		errKey   string
	}{
		{name: "Leaf", tree: "languages.results.Go.count", expected: "1\n"},
		{name: "Unknown file", tree: "files.results.unknown", expected: "null\n"},
		{name: "Missing key", tree: "languages.results.Cobol", errKey: "Cobol"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := settings(fixture(t))
			s.TreeSet, s.Tree = true, tc.tree
			out, err := run(t, s)
			if tc.errKey != "" {
				var terr *report.TraversalError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, tc.errKey, terr.Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestRunExplicitPaths(t *testing.T) {
	root := fixture(t)
	t.Chdir(root)
	s := settings("main.go", "docs")
	s.JSON = true
	out, err := run(t, s)
	require.NoError(t, err)

	results := decode(t, out)
	assert.Equal(t, 2, results.Files.Count)
	assert.Contains(t, results.Files.Results, "main.go")
	assert.Contains(t, results.Files.Results, "docs/README.md")
}

func TestRunCacheAndMetrics(t *testing.T) {
	root := fixture(t)
	out := t.TempDir()
	s := settings(root)
	s.CacheFile = filepath.Join(out, cache.FileName)
	s.MetricsFile = filepath.Join(out, "linguist.prom")

	_, err := run(t, s)
	require.NoError(t, err)
	assert.FileExists(t, s.CacheFile)
	raw, err := os.ReadFile(s.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `stage="extension"`)

	_, err = run(t, s)
	require.NoError(t, err)
	raw, err = os.ReadFile(s.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `result="hit"`)
}

func TestRunDataDir(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteTree(t, dataDir, map[string]string{
		"languages.yml":  "Gopher:\n  type: programming\n  extensions:\n  - \".go\"\n",
		"vendor.yml":     "- (^|/)vendor/\n",
		"heuristics.yml": "disambiguations: []\nnamed_patterns: {}\n",
	})
	s := settings(fixture(t))
	s.DataDir = dataDir
	s.JSON = true
	out, err := run(t, s)
	require.NoError(t, err)

	lang, _ := decode(t, out).Files.Language("main.go")
	assert.Equal(t, "Gopher", lang)
}

func gitFixture(t *testing.T) string {
	t.Helper()
	root := fixture(t)
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("init", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return root
}

func TestRunGitModes(t *testing.T) {
	testCases := []struct {
		name     string
		mode     string
		modify   bool
		expected []string
	}{
		{name: "Tracked", mode: "tracked", expected: []string{"main.go"}},
		{name: "Changed with clean tree", mode: "changed", expected: []string{}},
		{name: "Changed after edit", mode: "changed", modify: true, expected: []string{"main.go"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := gitFixture(t)
			if tc.modify {
				testutil.CreateDummyFile(t, filepath.Join(root, "main.go"), "package main\n\n// edited\n")
			}
			s := settings(root)
			s.GitMode = tc.mode
			s.JSON = true
			out, err := run(t, s)
			require.NoError(t, err)

			results := decode(t, out)
			files := make([]string, 0, len(results.Files.Results))
			for p := range results.Files.Results {
				files = append(files, p)
			}
			assert.ElementsMatch(t, tc.expected, files)
		})
	}
}

func TestRunGitModeNeedsFolder(t *testing.T) {
	root := gitFixture(t)
	s := settings(filepath.Join(root, "main.go"))
	s.GitMode = "tracked"
	_, err := run(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, linguist.ErrConfigValidation)
}

func TestRunWatch(t *testing.T) {
	root := fixture(t)
	s := settings(root)
	s.Watch = true

	var stdout syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cli.Run(ctx, s, slog.New(s.Logger), &stdout, io.Discard) }()

	require.Eventually(t, func() bool { return strings.Count(stdout.String(), "Analysed") == 1 }, 10*time.Second, 20*time.Millisecond)
	// Give the watcher time to register its folders.
	time.Sleep(200 * time.Millisecond)
	testutil.CreateDummyFile(t, filepath.Join(root, "extra.go"), "package main\n")

	require.Eventually(t, func() bool { return strings.Count(stdout.String(), "Analysed") == 2 }, 10*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := settings(fixture(t))
	err := cli.Run(ctx, s, slog.New(s.Logger), io.Discard, io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
