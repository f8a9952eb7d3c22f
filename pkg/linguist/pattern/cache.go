package pattern

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of compiled patterns kept by NewCache(0).
const DefaultCacheSize = 4096

type cacheKey struct {
	dialect Dialect
	literal string
}

// Cache memoises compiled patterns by dialect and literal text.
// It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[cacheKey, Matcher]
}

// NewCache creates a Cache holding at most size patterns (DefaultCacheSize when size <= 0).
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, Matcher](size)
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Compile returns the cached Matcher for text or compiles and stores it.
// Failed compilations are not cached.
func (c *Cache) Compile(source, text string, dialect Dialect) (Matcher, error) {
	key := cacheKey{dialect: dialect, literal: text}
	if m, ok := c.entries.Get(key); ok {
		return m, nil
	}
	m, err := Compile(source, text, dialect)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, m)
	return m, nil
}

// Len reports how many patterns are cached.
func (c *Cache) Len() int {
	return c.entries.Len()
}
