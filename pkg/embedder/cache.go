package embedder

import (
	"context"
	"strings"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheSize is the default number of query embeddings the cache
// retains before evicting.
const DefaultCacheSize = 1024

// Cache is a bounded, concurrency-safe embedding cache wrapping a
// Provider with get-or-compute semantics. It implements Provider, so it
// drops in anywhere the wrapped provider is used.
//
// Entries are keyed by the normalized query text, so repeated queries in
// a conversation skip the embedding call. Ristretto handles concurrent
// reads and eviction-safe inserts internally, so no external locking is
// needed.
type Cache struct {
	provider Provider
	cache    *ristretto.Cache
}

// NewCache creates an embedding cache in front of provider holding at
// most capacity entries. A capacity <= 0 falls back to DefaultCacheSize.
func NewCache(provider Provider, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		// Counters sized at 10x capacity per ristretto guidance.
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{provider: provider, cache: c}, nil
}

// Embed returns the embedding for text, computing and caching it on a
// miss.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	key := NormalizeQuery(text)

	if v, ok := c.cache.Get(key); ok {
		if emb, ok := v.([]float64); ok {
			return emb, nil
		}
	}

	emb, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, emb, 1)
	return emb, nil
}

// EmbedBatch delegates to the wrapped provider without caching; batch
// calls come from ingestion paths where texts rarely repeat.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return c.provider.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped provider's vector dimension.
func (c *Cache) Dimensions() int {
	return c.provider.Dimensions()
}

// Wait blocks until pending cache writes are applied. Only needed when
// asserting on cache contents (tests); production callers never wait.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases the cache and the wrapped provider.
func (c *Cache) Close() error {
	c.cache.Close()
	return c.provider.Close()
}

// NormalizeQuery canonicalizes query text for cache keying: lowercased,
// trimmed, inner whitespace collapsed.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
