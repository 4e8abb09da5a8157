// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/vecmath"
)

// CachedClient serves repeated texts from a badger store keyed by
// sha256(model, text). Only vectors that passed the dimension check are
// cached, so a hit never needs revalidation.
type CachedClient struct {
	next  Client
	db    *badger.DB
	model string
	log   *zap.Logger
}

var _ Client = (*CachedClient)(nil)

// OpenCache opens (or creates) a cache at dir. An empty dir opens an
// in-memory cache.
func OpenCache(dir string, log *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = logging.Badger(log)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache %q: %w", dir, err)
	}
	return db, nil
}

// NewCachedClient wraps next with the cache in db. The caller owns db.
func NewCachedClient(next Client, db *badger.DB, model string, log *zap.Logger) *CachedClient {
	return &CachedClient{next: next, db: db, model: model, log: logging.OrNop(log)}
}

func (c *CachedClient) Dimension() int { return c.next.Dimension() }

// Lookup returns the cached vector for text without calling the wrapped
// client. A read failure is logged and reported as a miss.
func (c *CachedClient) Lookup(text string) ([]float32, bool) {
	vec, err := c.get(cacheKey(c.model, text))
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.log.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return vec, len(vec) == c.Dimension()
}

// Embed returns the cached vector for text or calls the wrapped client and
// stores its result. Cache read and write failures are logged, not returned.
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.Lookup(text); ok {
		return vec, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(c.model, text), vecmath.Encode(vec))
	}); err != nil {
		c.log.Warn("embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

func (c *CachedClient) get(key []byte) ([]float32, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec = vecmath.Decode(val)
			return nil
		})
	})
	return vec, err
}

func cacheKey(model, text string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum([]byte("emb:"))
}
