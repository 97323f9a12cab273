// Package retrieval implements the multi-strategy memory retrieval
// layer: independent search strategies (vector, keyword, graph,
// profile, recency) run concurrently and their results are merged for
// downstream ranking.
package retrieval

import (
	"context"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

// MatchType identifies which strategy produced a result.
type MatchType string

const (
	MatchVector  MatchType = "vector"
	MatchKeyword MatchType = "keyword"
	MatchEntity  MatchType = "entity"
	MatchProfile MatchType = "profile"
	MatchRecent  MatchType = "recent"
)

// DefaultLimit is the per-strategy result cap when none is given.
const DefaultLimit = 10

// Query carries everything a strategy needs for one retrieval pass.
type Query struct {
	// UserID scopes all lookups. Strategies must never return another
	// user's memories.
	UserID string
	// Text is the raw query text.
	Text string
	// Analysis is the structured query analysis.
	Analysis *analyzer.Analysis
	// Limit caps results per strategy. Zero means DefaultLimit.
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Result is a single candidate memory produced by one strategy.
type Result struct {
	// Memory is the full memory record.
	Memory *storage.Memory
	// RawScore is the strategy's native, un-normalized score.
	RawScore float64
	// MatchType records the producing strategy.
	MatchType MatchType
	// Depth is the graph traversal distance for entity matches, zero
	// otherwise.
	Depth int
}

// Failure records a strategy that errored during a retrieval pass.
// Failures are absorbed, not propagated: the pass succeeds with the
// surviving strategies' results.
type Failure struct {
	Strategy string
	Err      error
}

// Strategy is a single retrieval approach. Retrieve returns no results
// and no error when the strategy does not apply to the query.
type Strategy interface {
	// Name identifies the strategy in logs and failure reports.
	Name() string

	// Retrieve returns candidate memories for the query.
	Retrieve(ctx context.Context, q Query) ([]Result, error)
}
