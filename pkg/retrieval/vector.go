package retrieval

import (
	"context"
	"fmt"

	"github.com/jyntrix/memctx-go/pkg/embedder"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

// VectorStrategy embeds the query text and searches the vector index
// for semantically similar memories.
type VectorStrategy struct {
	index    storage.VectorIndex
	embedder embedder.Provider
}

// NewVectorStrategy creates a vector similarity search strategy.
func NewVectorStrategy(index storage.VectorIndex, provider embedder.Provider) *VectorStrategy {
	return &VectorStrategy{index: index, embedder: provider}
}

// Name implements Strategy.
func (s *VectorStrategy) Name() string { return "vector" }

// Retrieve embeds the query and returns the nearest memories. Raw
// scores are cosine similarities in [-1, 1]. The strategy is skipped
// when the analysis decided memory is not needed.
func (s *VectorStrategy) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.Analysis != nil && !q.Analysis.RequiresMemory {
		return nil, nil
	}
	if q.UserID == "" {
		return nil, storage.ErrMissingUserID
	}

	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	var types []storage.MemoryType
	if q.Analysis != nil {
		types = q.Analysis.MemoryTypes
	}

	memories, err := s.index.Search(ctx, vector, &storage.VectorSearchOptions{
		UserID: q.UserID,
		Types:  types,
		TopK:   q.limit(),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, len(memories))
	for i, m := range memories {
		results[i] = Result{
			Memory:    m,
			RawScore:  m.Score,
			MatchType: MatchVector,
		}
	}
	return results, nil
}
