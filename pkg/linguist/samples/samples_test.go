package samples_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/stack-linguist/internal/testutil"
	"github.com/stackvity/stack-linguist/pkg/linguist/samples"
)

func quietLogger() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func TestMemory(t *testing.T) {
	m := samples.Memory{"Go": "package main"}
	content, ok, err := m.Sample(context.Background(), "Go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "package main", content)

	_, ok, err = m.Sample(context.Background(), "Rust")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDir(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"C++/b.cpp":    "int b;",
		"C++/a.cpp":    "int a;",
		"C/only.c":     "int c;",
		"Empty/":       "",
		"Nested/sub/x": "nested",
	})
	d := samples.Dir{Root: root}
	ctx := context.Background()

	content, ok, err := d.Sample(ctx, "C++")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "int a;", content, "first file in lexical order")

	content, ok, err = d.Sample(ctx, "C")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "int c;", content, "exact folder, no prefix matching")

	for _, lang := range []string{"Empty", "Nested", "Missing"} {
		_, ok, err = d.Sample(ctx, lang)
		require.NoError(t, err)
		assert.False(t, ok, lang)
	}
}

func TestGitHub(t *testing.T) {
	var treeCalls, rawCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/linguist/git/trees/HEAD", func(w http.ResponseWriter, r *http.Request) {
		treeCalls.Add(1)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"tree":[
			{"path":"samples","type":"tree"},
			{"path":"samples/C#/a.cs","type":"blob"},
			{"path":"samples/C#/b.cs","type":"blob"},
			{"path":"samples/C++/a.cpp","type":"blob"},
			{"path":"samples/C/filenames","type":"tree"},
			{"path":"lib/x.rb","type":"blob"}
		],"truncated":false}`))
	})
	mux.HandleFunc("/acme/linguist/HEAD/samples/", func(w http.ResponseWriter, r *http.Request) {
		rawCalls.Add(1)
		_, _ = w.Write([]byte("raw:" + r.URL.Path))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	g := samples.NewGitHub(samples.GitHubOptions{
		Repo:              "acme/linguist",
		APIBase:           server.URL,
		RawBase:           server.URL,
		Token:             "secret",
		Client:            server.Client(),
		RequestsPerSecond: 1000,
		Logger:            quietLogger(),
	})
	ctx := context.Background()

	content, ok, err := g.Sample(ctx, "C#")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "raw:/acme/linguist/HEAD/samples/C#/a.cs", content)

	_, ok, err = g.Sample(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok, "folders are not samples and C must not match C#")

	_, ok, err = g.Sample(ctx, "C++")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int32(1), treeCalls.Load(), "tree listing is fetched once")
	assert.Equal(t, int32(2), rawCalls.Load())
}

func TestGitHubErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer server.Close()

	g := samples.NewGitHub(samples.GitHubOptions{
		APIBase:           server.URL,
		RawBase:           server.URL,
		Client:            server.Client(),
		RequestsPerSecond: 1000,
		Logger:            quietLogger(),
	})
	_, _, err := g.Sample(context.Background(), "Go")
	require.Error(t, err)
	assert.ErrorIs(t, err, samples.ErrFetch)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Sample(ctx context.Context, language string) (string, bool, error) {
	args := m.Called(ctx, language)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestBadgerCache(t *testing.T) {
	inner := &mockProvider{}
	inner.On("Sample", mock.Anything, "Go").Return("package main", true, nil).Once()
	inner.On("Sample", mock.Anything, "Zig").Return("", false, nil).Once()
	inner.On("Sample", mock.Anything, "Flaky").Return("", false, errors.New("boom")).Twice()

	cache, err := samples.OpenBadgerCache("", inner, 0, quietLogger())
	require.NoError(t, err)
	defer cache.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		content, ok, err := cache.Sample(ctx, "Go")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "package main", content)

		_, ok, err = cache.Sample(ctx, "Zig")
		require.NoError(t, err)
		assert.False(t, ok, "absence is cached too")

		_, _, err = cache.Sample(ctx, "Flaky")
		assert.Error(t, err, "errors are not cached")
	}
	inner.AssertExpectations(t)
}

func TestBadgerCachePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "samples")
	inner := &mockProvider{}
	inner.On("Sample", mock.Anything, "Go").Return("package main", true, nil).Once()

	cache, err := samples.OpenBadgerCache(dir, inner, 0, quietLogger())
	require.NoError(t, err)
	_, _, err = cache.Sample(context.Background(), "Go")
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	reopened, err := samples.OpenBadgerCache(dir, samples.None{}, 0, quietLogger())
	require.NoError(t, err)
	defer reopened.Close()
	content, ok, err := reopened.Sample(context.Background(), "Go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "package main", content)
	inner.AssertExpectations(t)
}
