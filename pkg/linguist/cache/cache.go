// Package cache persists per-file classification outcomes between runs so
// unchanged files skip extraction, heuristics and the statistical fallback.
package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the default name of the cache index file.
const FileName = ".stack-linguist.cache"

// SchemaVersion is bumped whenever Entry or the file layout changes.
const SchemaVersion = "1.0"

const (
	FormatGob  = "gob"
	FormatJSON = "json"

	DefaultFormat = FormatGob
)

var (
	// ErrLoad is returned by Load for I/O failures other than a missing file.
	// Corrupt or mismatched files are treated as empty and not reported.
	ErrLoad = errors.New("failed to load cache index")

	// ErrPersist is returned when the index cannot be written.
	ErrPersist = errors.New("failed to persist cache index")
)

// Key identifies the inputs a cached outcome was computed from.
type Key struct {
	ModTime     time.Time
	ContentHash string
	ConfigHash  string
	// Override is the linguist-language attribute in force for the file.
	Override string
}

// Entry is one cached classification. Language is empty for files that
// resolved to no language.
type Entry struct {
	ModTime       time.Time `json:"modTime"`
	ContentHash   string    `json:"contentHash"`
	ConfigHash    string    `json:"configHash"`
	Override      string    `json:"override,omitempty"`
	Language      string    `json:"language,omitempty"`
	Stage         string    `json:"stage"`
	SchemaVersion string    `json:"schemaVersion"`
	ToolVersion   string    `json:"toolVersion"`
}

type fileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	ToolVersion   string `json:"toolVersion"`
}

type jsonFile struct {
	Header fileHeader       `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// Manager stores classification outcomes keyed by root-relative path.
// Check and Update must be safe for concurrent use after Load returns.
type Manager interface {
	Load(path string) error
	Check(relPath string, key Key) (Entry, bool)
	Update(relPath string, key Key, language, stage string) error
	Persist(path string) error
}

// NoOp never hits and never writes.
type NoOp struct{}

func (NoOp) Load(string) error                        { return nil }
func (NoOp) Check(string, Key) (Entry, bool)          { return Entry{}, false }
func (NoOp) Update(string, Key, string, string) error { return nil }
func (NoOp) Persist(string) error                     { return nil }

type fileManager struct {
	mu          sync.RWMutex
	index       map[string]Entry
	logger      *slog.Logger
	toolVersion string
	format      string
}

// NewFileManager creates a Manager backed by a single index file in the
// given format ("gob" or "json"; anything else selects gob). Entries written
// by a different non-dev toolVersion are ignored.
func NewFileManager(loggerHandler slog.Handler, toolVersion, format string) Manager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format = strings.ToLower(format)
	if format != FormatJSON && format != FormatGob {
		format = DefaultFormat
	}
	if toolVersion == "" {
		toolVersion = "dev"
	}
	return &fileManager{
		index:       make(map[string]Entry),
		toolVersion: toolVersion,
		format:      format,
		logger: slog.New(loggerHandler).With(
			slog.String("component", "cache"),
			slog.String("format", format)),
	}
}

// Load implements Manager.
func (c *fileManager) Load(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]Entry)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("Cache file not found, starting empty", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("%w: open %s: %w", ErrLoad, path, err)
	}
	defer f.Close()

	var (
		header fileHeader
		index  map[string]Entry
	)
	if c.format == FormatJSON {
		var data jsonFile
		err = json.NewDecoder(f).Decode(&data)
		header, index = data.Header, data.Index
	} else {
		dec := gob.NewDecoder(f)
		err = dec.Decode(&header)
		if err == nil {
			err = dec.Decode(&index)
		}
	}
	if err != nil {
		c.logger.Warn("Cache file unreadable, treating as empty", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	if header.SchemaVersion != SchemaVersion || !c.compatible(header.ToolVersion) {
		c.logger.Warn("Cache file version mismatch, invalidating",
			slog.String("path", path),
			slog.String("file_schema", header.SchemaVersion),
			slog.String("file_tool", header.ToolVersion))
		return nil
	}
	if index != nil {
		c.index = index
	}
	c.logger.Debug("Cache loaded", slog.String("path", path), slog.Int("entries", len(c.index)))
	return nil
}

func (c *fileManager) compatible(version string) bool {
	return version == c.toolVersion || version == "dev" || c.toolVersion == "dev"
}

// Check implements Manager.
func (c *fileManager) Check(relPath string, key Key) (Entry, bool) {
	c.mu.RLock()
	entry, found := c.index[relPath]
	c.mu.RUnlock()
	switch {
	case !found:
		return Entry{}, false
	case entry.SchemaVersion != SchemaVersion, !c.compatible(entry.ToolVersion):
		return Entry{}, false
	case !entry.ModTime.Equal(key.ModTime),
		entry.ContentHash != key.ContentHash,
		entry.ConfigHash != key.ConfigHash,
		entry.Override != key.Override:
		c.logger.Debug("Cache miss (stale entry)", slog.String("path", relPath))
		return Entry{}, false
	}
	return entry, true
}

// Update implements Manager.
func (c *fileManager) Update(relPath string, key Key, language, stage string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[relPath] = Entry{
		ModTime:       key.ModTime,
		ContentHash:   key.ContentHash,
		ConfigHash:    key.ConfigHash,
		Override:      key.Override,
		Language:      language,
		Stage:         stage,
		SchemaVersion: SchemaVersion,
		ToolVersion:   c.toolVersion,
	}
	return nil
}

// Persist implements Manager. The file is replaced atomically; an empty
// index removes it.
func (c *fileManager) Persist(path string) error {
	c.mu.RLock()
	index := maps.Clone(c.index)
	c.mu.RUnlock()

	if len(index) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrPersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %w", ErrPersist, dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	header := fileHeader{SchemaVersion: SchemaVersion, ToolVersion: c.toolVersion}
	if c.format == FormatJSON {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		err = enc.Encode(jsonFile{Header: header, Index: index})
	} else {
		enc := gob.NewEncoder(tmp)
		if err = enc.Encode(header); err == nil {
			err = enc.Encode(index)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersist, c.format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrPersist, tmpPath, err)
	}
	committed = true
	c.logger.Debug("Cache persisted", slog.String("path", path), slog.Int("entries", len(index)))
	return nil
}

// HashContent returns the hex SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
