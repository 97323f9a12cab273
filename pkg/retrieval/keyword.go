package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// DefaultCandidateLimit bounds how many memories are pulled from the
// store to build the per-query BM25 index when no explicit limit is
// configured.
const DefaultCandidateLimit = 1000

// KeywordStrategy scores memories against the query's keywords using
// BM25 over an in-memory index of the user's candidate memories.
type KeywordStrategy struct {
	docs           storage.DocumentStore
	candidateLimit int
}

// NewKeywordStrategy creates a BM25 keyword search strategy.
// candidateLimit bounds the per-query candidate fetch; values <= 0
// fall back to DefaultCandidateLimit.
func NewKeywordStrategy(docs storage.DocumentStore, candidateLimit int) *KeywordStrategy {
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}
	return &KeywordStrategy{docs: docs, candidateLimit: candidateLimit}
}

// Name implements Strategy.
func (s *KeywordStrategy) Name() string { return "keyword" }

// Retrieve fetches the user's candidate memories and ranks them by
// BM25 score against the extracted keywords. The strategy is skipped
// when the analysis found no keywords or decided memory is not needed.
func (s *KeywordStrategy) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.Analysis == nil || !q.Analysis.RequiresMemory || len(q.Analysis.Keywords) == 0 {
		return nil, nil
	}
	if q.UserID == "" {
		return nil, storage.ErrMissingUserID
	}

	memories, err := s.docs.Fetch(ctx, &storage.FetchOptions{
		UserID: q.UserID,
		Types:  q.Analysis.MemoryTypes,
		Limit:  s.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword candidate fetch: %w", err)
	}
	if len(memories) == 0 {
		return nil, nil
	}

	// Index content plus stored keywords, skipping memories that
	// tokenize to nothing.
	var docs [][]string
	var indexed []*storage.Memory
	for _, m := range memories {
		tokens := tokenize(m.Content + " " + strings.Join(m.Keywords, " "))
		if len(tokens) == 0 {
			continue
		}
		docs = append(docs, tokens)
		indexed = append(indexed, m)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	queryTokens := tokenize(strings.Join(q.Analysis.Keywords, " "))
	if len(queryTokens) == 0 {
		return nil, nil
	}

	scores := newBM25Index(docs).scores(queryTokens)

	results := make([]Result, 0, len(indexed))
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			Memory:    indexed[i],
			RawScore:  score,
			MatchType: MatchKeyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RawScore > results[j].RawScore
	})
	if limit := q.limit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
