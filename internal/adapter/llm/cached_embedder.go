package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"docchat/internal/domain"
)

// DefaultEmbedCacheSize is the fallback number of cached vectors.
const DefaultEmbedCacheSize = 512

// CachedEmbedder wraps an Embedder with an LRU cache keyed by text and
// model, so repeated rewritten queries skip the provider round-trip.
type CachedEmbedder struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder creates a caching decorator around inner.
func NewCachedEmbedder(inner domain.Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbedCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + c.inner.Version()))
	return hex.EncodeToString(hash[:])
}

// Encode returns cached vectors where possible and batches only the misses
// to the inner embedder, preserving input order.
func (c *CachedEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	encoded, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIndices {
		results[idx] = encoded[j]
		c.cache.Add(c.cacheKey(texts[idx]), encoded[j])
	}
	return results, nil
}

// Version returns the inner embedder's model name.
func (c *CachedEmbedder) Version() string {
	return c.inner.Version()
}

var _ domain.Embedder = (*CachedEmbedder)(nil)
