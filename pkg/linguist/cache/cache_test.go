package cache_test

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
)

func quiet() slog.Handler { return slog.NewTextHandler(io.Discard, nil) }

func sampleKey() cache.Key {
	return cache.Key{
		ModTime:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ContentHash: cache.HashContent([]byte("package main")),
		ConfigHash:  "cfg-1",
	}
}

func TestRoundTripFormats(t *testing.T) {
	for _, format := range []string{cache.FormatGob, cache.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), cache.FileName)
			m := cache.NewFileManager(quiet(), "v1.0.0", format)
			require.NoError(t, m.Load(path))
			require.NoError(t, m.Update("main.go", sampleKey(), "Go", "extension"))
			require.NoError(t, m.Update("README", sampleKey(), "", "none"))
			require.NoError(t, m.Persist(path))

			reloaded := cache.NewFileManager(quiet(), "v1.0.0", format)
			require.NoError(t, reloaded.Load(path))
			entry, ok := reloaded.Check("main.go", sampleKey())
			require.True(t, ok)
			assert.Equal(t, "Go", entry.Language)
			assert.Equal(t, "extension", entry.Stage)

			entry, ok = reloaded.Check("README", sampleKey())
			require.True(t, ok)
			assert.Empty(t, entry.Language)
		})
	}
}

func TestCheckMisses(t *testing.T) {
	m := cache.NewFileManager(quiet(), "dev", "")
	require.NoError(t, m.Update("a.h", sampleKey(), "C", "heuristics"))

	changed := func(f func(k *cache.Key)) cache.Key {
		k := sampleKey()
		f(&k)
		return k
	}
	tests := []struct {
		name string
		path string
		key  cache.Key
		hit  bool
	}{
		{name: "identical inputs", path: "a.h", key: sampleKey(), hit: true},
		{name: "unknown path", path: "b.h", key: sampleKey()},
		{name: "mtime changed", path: "a.h", key: changed(func(k *cache.Key) { k.ModTime = k.ModTime.Add(time.Second) })},
		{name: "content changed", path: "a.h", key: changed(func(k *cache.Key) { k.ContentHash = "other" })},
		{name: "config changed", path: "a.h", key: changed(func(k *cache.Key) { k.ConfigHash = "cfg-2" })},
		{name: "override added", path: "a.h", key: changed(func(k *cache.Key) { k.Override = "C++" })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := m.Check(tt.path, tt.key)
			assert.Equal(t, tt.hit, ok)
		})
	}
}

func TestLoadInvalidatesOtherToolVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.FileName)
	old := cache.NewFileManager(quiet(), "v1.0.0", cache.FormatJSON)
	require.NoError(t, old.Update("main.go", sampleKey(), "Go", "extension"))
	require.NoError(t, old.Persist(path))

	newer := cache.NewFileManager(quiet(), "v2.0.0", cache.FormatJSON)
	require.NoError(t, newer.Load(path))
	_, ok := newer.Check("main.go", sampleKey())
	assert.False(t, ok)

	dev := cache.NewFileManager(quiet(), "dev", cache.FormatJSON)
	require.NoError(t, dev.Load(path))
	_, ok = dev.Check("main.go", sampleKey())
	assert.True(t, ok, "dev builds accept any cache")
}

func TestLoadToleratesCorruptFiles(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		content string
	}{
		{name: "empty gob", format: cache.FormatGob, content: ""},
		{name: "garbage gob", format: cache.FormatGob, content: "not a gob stream"},
		{name: "broken json", format: cache.FormatJSON, content: `{"header":`},
		{name: "json read as gob", format: cache.FormatGob, content: `{"header":{},"index":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), cache.FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			m := cache.NewFileManager(quiet(), "dev", tt.format)
			assert.NoError(t, m.Load(path))
			_, ok := m.Check("anything", sampleKey())
			assert.False(t, ok)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	m := cache.NewFileManager(quiet(), "dev", "")
	assert.NoError(t, m.Load(filepath.Join(t.TempDir(), "absent", cache.FileName)))
}

func TestPersistEmptyRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.FileName)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	m := cache.NewFileManager(quiet(), "dev", "")
	require.NoError(t, m.Persist(path))
	assert.NoFileExists(t, path)
}

func TestPersistLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", cache.FileName)
	m := cache.NewFileManager(quiet(), "dev", "")
	require.NoError(t, m.Update("x", sampleKey(), "Go", "extension"))
	require.NoError(t, m.Persist(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cache.FileName, entries[0].Name())
}

func TestConcurrentUpdates(t *testing.T) {
	m := cache.NewFileManager(quiet(), "dev", "")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("f%d.go", i)
			_ = m.Update(p, sampleKey(), "Go", "extension")
			_, _ = m.Check(p, sampleKey())
		}(i)
	}
	wg.Wait()
	for i := 0; i < 32; i++ {
		_, ok := m.Check(fmt.Sprintf("f%d.go", i), sampleKey())
		assert.True(t, ok)
	}
}

func TestNoOp(t *testing.T) {
	var m cache.Manager = cache.NoOp{}
	require.NoError(t, m.Update("a", sampleKey(), "Go", "extension"))
	_, ok := m.Check("a", sampleKey())
	assert.False(t, ok)
}

func TestHashContent(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", cache.HashContent(nil))
	assert.NotEqual(t, cache.HashContent([]byte("a")), cache.HashContent([]byte("b")))
}
