package retrieval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/retrieval"
	"github.com/jyntrix/memctx-go/pkg/storage"
	"github.com/jyntrix/memctx-go/pkg/storage/inmem"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }
func (f *fakeEmbedder) Close() error    { return nil }

func seedStore(t *testing.T, store *inmem.Store) {
	t.Helper()
	ctx := context.Background()
	memories := []*storage.Memory{
		{
			ID: "m1", UserID: "u1", Type: storage.TypeProfile,
			Content: "Prefers concise answers with code samples", Confidence: 0.95,
		},
		{
			ID: "m2", UserID: "u1", Type: storage.TypeSemantic,
			Content:   "Works on a payments service written in Go",
			Keywords:  []string{"payments", "golang"},
			Embedding: []float64{1, 0, 0}, Confidence: 0.8,
		},
		{
			ID: "m3", UserID: "u1", Type: storage.TypeEpisodic,
			Content:   "Discussed retry budgets for the payments service",
			Embedding: []float64{0.9, 0.1, 0}, Confidence: 0.7,
			CreatedAt: time.Now().Add(-24 * time.Hour),
		},
		{
			ID: "other", UserID: "u2", Type: storage.TypeSemantic,
			Content:   "Another user's payments memory",
			Embedding: []float64{1, 0, 0}, Confidence: 0.9,
		},
	}
	for _, m := range memories {
		require.NoError(t, store.Insert(ctx, m))
	}
}

func analysisFor(keywords, entities []string) *analyzer.Analysis {
	return &analyzer.Analysis{
		Intent:         analyzer.IntentRecall,
		Keywords:       keywords,
		Entities:       entities,
		RequiresMemory: true,
		MemoryTypes:    storage.AllTypes,
	}
}

func TestKeywordStrategy(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	s := retrieval.NewKeywordStrategy(store, 0)

	results, err := s.Retrieve(context.Background(), retrieval.Query{
		UserID:   "u1",
		Text:     "payments service",
		Analysis: analysisFor([]string{"payments", "service"}, nil),
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make(map[string]bool)
	for _, r := range results {
		assert.Equal(t, retrieval.MatchKeyword, r.MatchType)
		assert.Greater(t, r.RawScore, 0.0)
		assert.Equal(t, "u1", r.Memory.UserID)
		ids[r.Memory.ID] = true
	}
	assert.True(t, ids["m2"])
	assert.True(t, ids["m3"])
	// The unrelated profile memory does not match.
	assert.False(t, ids["m1"])
	// Never another user's memory.
	assert.False(t, ids["other"])
}

func TestKeywordStrategySkips(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	s := retrieval.NewKeywordStrategy(store, 0)
	ctx := context.Background()

	// No analysis at all.
	results, err := s.Retrieve(ctx, retrieval.Query{UserID: "u1", Text: "payments"})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Memory not required.
	a := analysisFor([]string{"payments"}, nil)
	a.RequiresMemory = false
	results, err = s.Retrieve(ctx, retrieval.Query{UserID: "u1", Text: "payments", Analysis: a})
	require.NoError(t, err)
	assert.Empty(t, results)

	// No keywords extracted.
	results, err = s.Retrieve(ctx, retrieval.Query{UserID: "u1", Text: "??", Analysis: analysisFor(nil, nil)})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// limitCapturingStore records the fetch limit the keyword strategy
// requests.
type limitCapturingStore struct {
	*inmem.Store
	lastLimit int
}

func (s *limitCapturingStore) Fetch(ctx context.Context, opts *storage.FetchOptions) ([]*storage.Memory, error) {
	s.lastLimit = opts.Limit
	return s.Store.Fetch(ctx, opts)
}

func TestKeywordStrategyCandidateLimit(t *testing.T) {
	store := &limitCapturingStore{Store: inmem.NewStore()}
	seedStore(t, store.Store)
	ctx := context.Background()
	query := retrieval.Query{
		UserID:   "u1",
		Text:     "payments service",
		Analysis: analysisFor([]string{"payments", "service"}, nil),
	}

	_, err := retrieval.NewKeywordStrategy(store, 250).Retrieve(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, 250, store.lastLimit)

	// Zero and negative fall back to the default.
	_, err = retrieval.NewKeywordStrategy(store, 0).Retrieve(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultCandidateLimit, store.lastLimit)

	_, err = retrieval.NewKeywordStrategy(store, -5).Retrieve(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultCandidateLimit, store.lastLimit)
}

func TestKeywordStrategyMissingUser(t *testing.T) {
	s := retrieval.NewKeywordStrategy(inmem.NewStore(), 0)
	_, err := s.Retrieve(context.Background(), retrieval.Query{
		Text:     "payments",
		Analysis: analysisFor([]string{"payments"}, nil),
	})
	assert.ErrorIs(t, err, storage.ErrMissingUserID)
}

func TestVectorStrategy(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	s := retrieval.NewVectorStrategy(store, &fakeEmbedder{vector: []float64{1, 0, 0}})

	results, err := s.Retrieve(context.Background(), retrieval.Query{
		UserID:   "u1",
		Text:     "payments work",
		Analysis: analysisFor([]string{"payments"}, nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Exact-direction match comes first with cosine 1.0.
	assert.Equal(t, "m2", results[0].Memory.ID)
	assert.InDelta(t, 1.0, results[0].RawScore, 1e-9)
	assert.Equal(t, retrieval.MatchVector, results[0].MatchType)
	assert.Equal(t, "m3", results[1].Memory.ID)
	assert.Less(t, results[1].RawScore, results[0].RawScore)
}

func TestVectorStrategySkipsWhenMemoryNotNeeded(t *testing.T) {
	s := retrieval.NewVectorStrategy(inmem.NewStore(), &fakeEmbedder{vector: []float64{1}})
	a := analysisFor(nil, nil)
	a.RequiresMemory = false

	results, err := s.Retrieve(context.Background(), retrieval.Query{UserID: "u1", Text: "x", Analysis: a})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorStrategyEmbedError(t *testing.T) {
	s := retrieval.NewVectorStrategy(inmem.NewStore(), &fakeEmbedder{err: errors.New("quota exceeded")})
	_, err := s.Retrieve(context.Background(), retrieval.Query{UserID: "u1", Text: "x"})
	assert.ErrorContains(t, err, "query embedding")
}

func TestGraphStrategy(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	ctx := context.Background()

	require.NoError(t, store.LinkEntity(ctx, "u1", "m2", "Payments Service"))
	require.NoError(t, store.LinkEntity(ctx, "u1", "m3", "Retry Budget"))
	require.NoError(t, store.Relate(ctx, "u1", "Payments Service", "Retry Budget", "configures"))

	s := retrieval.NewGraphStrategy(store, 2, retrieval.DefaultGraphScores())
	results, err := s.Retrieve(ctx, retrieval.Query{
		UserID:   "u1",
		Text:     "tell me about the payments service",
		Analysis: analysisFor(nil, []string{"Payments Service"}),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Directly linked memory first, one hop out second.
	assert.Equal(t, "m2", results[0].Memory.ID)
	assert.Equal(t, 1, results[0].Depth)
	assert.InDelta(t, 0.8, results[0].RawScore, 1e-9)

	assert.Equal(t, "m3", results[1].Memory.ID)
	assert.Equal(t, 2, results[1].Depth)
	assert.InDelta(t, 0.6, results[1].RawScore, 1e-9)
}

func TestGraphStrategySkipsWithoutEntities(t *testing.T) {
	s := retrieval.NewGraphStrategy(inmem.NewStore(), 2, retrieval.DefaultGraphScores())
	results, err := s.Retrieve(context.Background(), retrieval.Query{
		UserID:   "u1",
		Analysis: analysisFor([]string{"payments"}, nil),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGraphScoresAt(t *testing.T) {
	scores := retrieval.DefaultGraphScores()
	assert.Equal(t, 0.8, scores.At(0))
	assert.Equal(t, 0.8, scores.At(1))
	assert.Equal(t, 0.6, scores.At(2))
	assert.Equal(t, 0.4, scores.At(3))
	assert.Equal(t, 0.4, scores.At(7))
}

func TestProfileStrategyAlwaysRuns(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	s := retrieval.NewProfileStrategy(store)

	// No analysis: the strategy still returns profile memories.
	results, err := s.Retrieve(context.Background(), retrieval.Query{UserID: "u1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
	assert.Equal(t, retrieval.MatchProfile, results[0].MatchType)
	assert.InDelta(t, 0.95, results[0].RawScore, 1e-9)
}

func TestRecencyStrategyAlwaysRuns(t *testing.T) {
	store := inmem.NewStore()
	seedStore(t, store)
	s := retrieval.NewRecencyStrategy(store)

	results, err := s.Retrieve(context.Background(), retrieval.Query{UserID: "u1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "m3", r.Memory.ID)
	assert.Equal(t, retrieval.MatchRecent, r.MatchType)
	// One day old with confidence 0.7: decay barely below full.
	assert.Greater(t, r.RawScore, 0.65)
	assert.Less(t, r.RawScore, 0.7)
}
