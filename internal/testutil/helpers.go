package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile writes content to path, creating parent directories.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0o755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0o644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at the given path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	err := os.MkdirAll(fullPath, 0o755)
	require.NoError(t, err, "Failed to create dummy directory %s", fullPath)
}

// WriteTree creates every slash-separated relative path in files under root.
// Keys ending in "/" create empty directories. Files are written in sorted
// order so fixtures are reproducible.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, rel := range keys {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			CreateDummyDir(t, full)
			continue
		}
		CreateDummyFile(t, full, files[rel])
	}
}
