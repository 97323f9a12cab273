package retrieval

import (
	"context"
	"fmt"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// profileLimit caps how many profile memories are pulled per pass.
// Profile memories are few and cheap; the cap is a safety bound.
const profileLimit = 20

// ProfileStrategy always retrieves the user's profile memories,
// ordered by confidence, regardless of query content. Profile facts
// personalize every response.
type ProfileStrategy struct {
	docs storage.DocumentStore
}

// NewProfileStrategy creates the always-on profile retrieval strategy.
func NewProfileStrategy(docs storage.DocumentStore) *ProfileStrategy {
	return &ProfileStrategy{docs: docs}
}

// Name implements Strategy.
func (s *ProfileStrategy) Name() string { return "profile" }

// Retrieve returns the user's highest-confidence profile memories. The
// raw score is the memory's confidence.
func (s *ProfileStrategy) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.UserID == "" {
		return nil, storage.ErrMissingUserID
	}

	memories, err := s.docs.Fetch(ctx, &storage.FetchOptions{
		UserID:  q.UserID,
		Types:   []storage.MemoryType{storage.TypeProfile},
		OrderBy: storage.OrderByConfidence,
		Limit:   profileLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("profile fetch: %w", err)
	}

	results := make([]Result, len(memories))
	for i, m := range memories {
		results[i] = Result{
			Memory:    m,
			RawScore:  m.Confidence,
			MatchType: MatchProfile,
		}
	}
	return results, nil
}
