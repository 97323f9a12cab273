package retrieval

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// recencyHalfLifeDays is the half-life of the freshness decay applied
// to recent episodic memories.
const recencyHalfLifeDays = 30.0

// RecencyStrategy always retrieves the user's most recent episodic
// memories so fresh conversational context is available even when the
// query matches nothing.
type RecencyStrategy struct {
	docs storage.DocumentStore
	now  func() time.Time
}

// NewRecencyStrategy creates the always-on recent context strategy.
func NewRecencyStrategy(docs storage.DocumentStore) *RecencyStrategy {
	return &RecencyStrategy{docs: docs, now: time.Now}
}

// Name implements Strategy.
func (s *RecencyStrategy) Name() string { return "recency" }

// Retrieve returns the newest episodic memories. The raw score is the
// memory's freshness decay weighted by its confidence.
func (s *RecencyStrategy) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.UserID == "" {
		return nil, storage.ErrMissingUserID
	}

	memories, err := s.docs.Fetch(ctx, &storage.FetchOptions{
		UserID:  q.UserID,
		Types:   []storage.MemoryType{storage.TypeEpisodic},
		OrderBy: storage.OrderByCreatedAt,
		Limit:   q.limit(),
	})
	if err != nil {
		return nil, fmt.Errorf("recent context fetch: %w", err)
	}

	now := s.now()
	results := make([]Result, len(memories))
	for i, m := range memories {
		ageDays := now.Sub(m.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		freshness := math.Exp(-math.Ln2 / recencyHalfLifeDays * ageDays)
		results[i] = Result{
			Memory:    m,
			RawScore:  freshness * m.Confidence,
			MatchType: MatchRecent,
		}
	}
	return results, nil
}
