package embedder_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/embedder"
)

type countingProvider struct {
	calls int32
	err   error
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float64, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return []float64{float64(len(text)), 1}, nil
}

func (p *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return 2 }
func (p *countingProvider) Close() error    { return nil }

func TestCacheHit(t *testing.T) {
	provider := &countingProvider{}
	cache, err := embedder.NewCache(provider, 16)
	require.NoError(t, err)
	defer cache.Close()
	ctx := context.Background()

	first, err := cache.Embed(ctx, "what are my preferences")
	require.NoError(t, err)
	cache.Wait()

	second, err := cache.Embed(ctx, "what are my preferences")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestCacheKeyNormalization(t *testing.T) {
	provider := &countingProvider{}
	cache, err := embedder.NewCache(provider, 16)
	require.NoError(t, err)
	defer cache.Close()
	ctx := context.Background()

	_, err = cache.Embed(ctx, "What Are My Preferences")
	require.NoError(t, err)
	cache.Wait()

	// Case and whitespace variants share one cache entry.
	_, err = cache.Embed(ctx, "  what   are my preferences ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestCacheMissOnError(t *testing.T) {
	provider := &countingProvider{err: errors.New("rate limited")}
	cache, err := embedder.NewCache(provider, 16)
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Embed(context.Background(), "q")
	assert.Error(t, err)

	// Errors are never cached; the next call retries the provider.
	provider.err = nil
	_, err = cache.Embed(context.Background(), "q")
	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))
}

func TestCacheBatchBypassesCache(t *testing.T) {
	provider := &countingProvider{}
	cache, err := embedder.NewCache(provider, 16)
	require.NoError(t, err)
	defer cache.Close()

	vecs, err := cache.EmbedBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Zero(t, atomic.LoadInt32(&provider.calls))
}

func TestCacheDimensions(t *testing.T) {
	cache, err := embedder.NewCache(&countingProvider{}, 0)
	require.NoError(t, err)
	defer cache.Close()
	assert.Equal(t, 2, cache.Dimensions())
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "hello world", embedder.NormalizeQuery("  Hello   WORLD "))
	assert.Empty(t, embedder.NormalizeQuery("   "))
}
