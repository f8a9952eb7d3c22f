package samples

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	sampleKeyPrefix = "sample/"
	markerPresent   = byte(1)
	markerAbsent    = byte(0)

	// DefaultCacheTTL bounds how long a fetched sample (or its absence) is reused.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// BadgerCache persists the answers of another Provider in a badger database,
// including "no sample" answers.
type BadgerCache struct {
	db     *badger.DB
	inner  Provider
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerCache opens (or creates) a cache at dir in front of inner. An
// empty dir keeps the cache in memory. ttl <= 0 selects DefaultCacheTTL.
func OpenBadgerCache(dir string, inner Provider, ttl time.Duration, loggerHandler slog.Handler) (*BadgerCache, error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open sample cache %q: %w", dir, err)
	}
	return &BadgerCache{
		db:     db,
		inner:  inner,
		ttl:    ttl,
		logger: slog.New(loggerHandler).With(slog.String("component", "samples.cache")),
	}, nil
}

// Sample implements Provider.
func (c *BadgerCache) Sample(ctx context.Context, language string) (string, bool, error) {
	key := []byte(sampleKeyPrefix + language)
	var (
		content string
		ok, hit bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return nil
			}
			hit = true
			ok = val[0] == markerPresent
			content = string(val[1:])
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		c.logger.Warn("Sample cache read failed", slog.String("language", language), slog.String("error", err.Error()))
	}
	if hit {
		return content, ok, nil
	}

	content, ok, err = c.inner.Sample(ctx, language)
	if err != nil {
		return "", false, err
	}
	marker := markerAbsent
	if ok {
		marker = markerPresent
	}
	val := append([]byte{marker}, content...)
	werr := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, val).WithTTL(c.ttl))
	})
	if werr != nil {
		c.logger.Warn("Sample cache write failed", slog.String("language", language), slog.String("error", werr.Error()))
	}
	return content, ok, nil
}

// Close releases the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
