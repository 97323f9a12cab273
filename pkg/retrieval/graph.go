package retrieval

import (
	"context"
	"fmt"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// DefaultGraphDepth is the default maximum traversal distance from a
// matched entity.
const DefaultGraphDepth = 2

// GraphScores maps traversal depth to a raw relevance score. Direct
// entity matches score highest, with fixed steps down per hop.
type GraphScores struct {
	Direct float64
	OneHop float64
	Deeper float64
}

// DefaultGraphScores returns the standard depth-tier scores.
func DefaultGraphScores() GraphScores {
	return GraphScores{Direct: 0.8, OneHop: 0.6, Deeper: 0.4}
}

// At returns the raw score for a given traversal depth.
func (g GraphScores) At(depth int) float64 {
	switch {
	case depth <= 1:
		return g.Direct
	case depth == 2:
		return g.OneHop
	default:
		return g.Deeper
	}
}

// GraphStrategy finds memories linked to entities mentioned in the
// query by traversing the user's entity graph.
type GraphStrategy struct {
	graph  storage.EntityGraph
	depth  int
	scores GraphScores
}

// NewGraphStrategy creates an entity graph traversal strategy with the
// given maximum depth. Depth <= 0 falls back to DefaultGraphDepth.
func NewGraphStrategy(graph storage.EntityGraph, depth int, scores GraphScores) *GraphStrategy {
	if depth <= 0 {
		depth = DefaultGraphDepth
	}
	return &GraphStrategy{graph: graph, depth: depth, scores: scores}
}

// Name implements Strategy.
func (s *GraphStrategy) Name() string { return "graph" }

// Retrieve traverses the entity graph outward from the query's
// entities and returns linked memories scored by traversal depth. The
// strategy is skipped when no entities were detected or memory is not
// needed.
func (s *GraphStrategy) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.Analysis == nil || !q.Analysis.RequiresMemory || len(q.Analysis.Entities) == 0 {
		return nil, nil
	}
	if q.UserID == "" {
		return nil, storage.ErrMissingUserID
	}

	linked, err := s.graph.Traverse(ctx, &storage.TraverseOptions{
		UserID:      q.UserID,
		EntityNames: q.Analysis.Entities,
		MaxDepth:    s.depth,
		Limit:       q.limit(),
	})
	if err != nil {
		return nil, fmt.Errorf("graph traversal: %w", err)
	}

	results := make([]Result, len(linked))
	for i, gr := range linked {
		results[i] = Result{
			Memory:    gr.Memory,
			RawScore:  s.scores.At(gr.Depth),
			MatchType: MatchEntity,
			Depth:     gr.Depth,
		}
	}
	return results, nil
}
