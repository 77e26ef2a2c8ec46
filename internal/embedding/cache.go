package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedEmbedder remembers vectors by text so repeated queries, such as a
// golden set replayed after every re-index, skip the model.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.Cache
}

// NewCachedEmbedder wraps e with a cache whose entries live for ttl.
func NewCachedEmbedder(e Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: e,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Embed returns cached vectors where it can and sends only the misses to
// the wrapped embedder, in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing []string
		at      []int
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		at = append(at, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	got, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(got) != len(missing) {
		// Let the Batcher report the count mismatch.
		return got, nil
	}
	for j, v := range got {
		out[at[j]] = v
		c.cache.SetDefault(missing[j], v)
	}
	return out, nil
}

// size is the number of cached vectors.
func (c *CachedEmbedder) size() int {
	return c.cache.ItemCount()
}
