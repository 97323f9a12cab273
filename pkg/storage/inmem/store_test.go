package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/storage"
	"github.com/jyntrix/memctx-go/pkg/storage/inmem"
)

func newSeeded(t *testing.T) *inmem.Store {
	t.Helper()
	s := inmem.NewStore()
	ctx := context.Background()
	for _, m := range []*storage.Memory{
		{ID: "a", UserID: "u1", Type: storage.TypeSemantic, Content: "likes go",
			Embedding: []float64{1, 0}, Confidence: 0.9, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "b", UserID: "u1", Type: storage.TypeEpisodic, Content: "talked deploys",
			Embedding: []float64{0, 1}, Confidence: 0.6, CreatedAt: time.Now()},
		{ID: "c", UserID: "u2", Type: storage.TypeSemantic, Content: "other user",
			Embedding: []float64{1, 0}, Confidence: 0.9, CreatedAt: time.Now()},
	} {
		require.NoError(t, s.Insert(ctx, m))
	}
	return s
}

func TestSearchIsUserScoped(t *testing.T) {
	s := newSeeded(t)

	results, err := s.Search(context.Background(), []float64{1, 0}, &storage.VectorSearchOptions{
		UserID: "u1", TopK: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, m := range results {
		assert.Equal(t, "u1", m.UserID)
	}
	// Best cosine first.
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchRequiresUser(t *testing.T) {
	s := newSeeded(t)
	_, err := s.Search(context.Background(), []float64{1, 0}, &storage.VectorSearchOptions{})
	assert.ErrorIs(t, err, storage.ErrMissingUserID)

	_, err = s.Search(context.Background(), []float64{1, 0}, nil)
	assert.ErrorIs(t, err, storage.ErrMissingUserID)
}

func TestSearchTypeAndScoreFilters(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	results, err := s.Search(ctx, []float64{1, 0}, &storage.VectorSearchOptions{
		UserID: "u1", Types: []storage.MemoryType{storage.TypeEpisodic},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	results, err = s.Search(ctx, []float64{1, 0}, &storage.VectorSearchOptions{
		UserID: "u1", MinScore: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestFetchOrdering(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	byConfidence, err := s.Fetch(ctx, &storage.FetchOptions{
		UserID: "u1", OrderBy: storage.OrderByConfidence,
	})
	require.NoError(t, err)
	require.Len(t, byConfidence, 2)
	assert.Equal(t, "a", byConfidence[0].ID)

	byCreated, err := s.Fetch(ctx, &storage.FetchOptions{
		UserID: "u1", OrderBy: storage.OrderByCreatedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", byCreated[0].ID)
}

func TestFetchLimit(t *testing.T) {
	s := newSeeded(t)
	results, err := s.Fetch(context.Background(), &storage.FetchOptions{UserID: "u1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGetScopedToUser(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	m, err := s.Get(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, "likes go", m.Content)

	// Another user's ID behaves like a missing record.
	_, err = s.Get(ctx, "u1", "c")
	assert.Error(t, err)
}

func TestInsertGeneratesID(t *testing.T) {
	s := inmem.NewStore()
	m := &storage.Memory{UserID: "u1", Type: storage.TypeSemantic, Content: "x"}
	require.NoError(t, s.Insert(context.Background(), m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	before, err := s.Get(ctx, "u1", "a")
	require.NoError(t, err)

	updated := *before
	updated.Content = "likes go and rust"
	require.NoError(t, s.Update(ctx, &updated))

	after, err := s.Get(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, "likes go and rust", after.Content)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
}

func TestDelete(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "u1", "a"))
	_, err := s.Get(ctx, "u1", "a")
	assert.Error(t, err)

	// Cannot delete across users.
	assert.Error(t, s.Delete(ctx, "u1", "c"))
}

func TestIncrementAccess(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.IncrementAccess(ctx, "u1", []string{"a", "a", "missing"}))

	m, err := s.Get(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.AccessCount)
	require.NotNil(t, m.LastAccessedAt)
}

func TestTraverseDepths(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.LinkEntity(ctx, "u1", "a", "Go"))
	require.NoError(t, s.LinkEntity(ctx, "u1", "b", "Deployments"))
	require.NoError(t, s.Relate(ctx, "u1", "Go", "Deployments", "used_for"))

	results, err := s.Traverse(ctx, &storage.TraverseOptions{
		UserID: "u1", EntityNames: []string{"go"}, MaxDepth: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Memory.ID)
	assert.Equal(t, 1, results[0].Depth)
	assert.Equal(t, "b", results[1].Memory.ID)
	assert.Equal(t, 2, results[1].Depth)
}

func TestTraverseDepthLimit(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.LinkEntity(ctx, "u1", "a", "Go"))
	require.NoError(t, s.LinkEntity(ctx, "u1", "b", "Deployments"))
	require.NoError(t, s.Relate(ctx, "u1", "Go", "Deployments", "used_for"))

	results, err := s.Traverse(ctx, &storage.TraverseOptions{
		UserID: "u1", EntityNames: []string{"Go"}, MaxDepth: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Memory.ID)
}

func TestTraverseUserIsolation(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.LinkEntity(ctx, "u1", "a", "Shared Name"))
	require.NoError(t, s.LinkEntity(ctx, "u2", "c", "Shared Name"))

	results, err := s.Traverse(ctx, &storage.TraverseOptions{
		UserID: "u2", EntityNames: []string{"Shared Name"}, MaxDepth: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].Memory.ID)
}

func TestTraverseUnknownEntity(t *testing.T) {
	s := newSeeded(t)
	results, err := s.Traverse(context.Background(), &storage.TraverseOptions{
		UserID: "u1", EntityNames: []string{"nobody"}, MaxDepth: 2,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchReturnsCopies(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	results, err := s.Search(ctx, []float64{1, 0}, &storage.VectorSearchOptions{UserID: "u1", TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results[0].Content = "mutated"
	fresh, err := s.Get(ctx, "u1", results[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", fresh.Content)
}
