package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CacheConfig holds Cached embedder configuration.
type CacheConfig struct {
	// NumCounters is the number of keys to track frequency of (10x the
	// expected number of cached embeddings).
	NumCounters int64

	// MaxCost caps total cache cost in bytes of stored vectors.
	MaxCost int64
}

// DefaultCacheConfig is sized for a single game session's worth of
// query and memory texts.
var DefaultCacheConfig = &CacheConfig{
	NumCounters: 100_000,
	MaxCost:     64 << 20, // 64 MiB
}

// Cached wraps an Embedder with a ristretto cache keyed by the exact
// text. Embedding the same text twice hits the cache, which matters for
// repeated queries and for the manual-scan fallback that re-embeds the
// query on every request.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache. A nil config uses DefaultCacheConfig.
func NewCached(inner Embedder, config *CacheConfig) (*Cached, error) {
	if config == nil {
		config = DefaultCacheConfig
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, embedding on miss.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// Cost is the vector's byte size
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimensions returns the inner embedder's dimensions.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases cache resources.
func (c *Cached) Close() {
	c.cache.Close()
}
