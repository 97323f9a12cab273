package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/jyntrix/memctx-go/pkg/retrieval"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Scores holds the normalized per-signal scores and their weighted
// combination, all in [0, 1].
type Scores struct {
	Keyword     float64 `json:"keyword"`
	Vector      float64 `json:"vector"`
	Reliability float64 `json:"reliability"`
	Recency     float64 `json:"recency"`
	Frequency   float64 `json:"frequency"`
	Combined    float64 `json:"combined"`
}

// RankedMemory is one deduplicated memory with its final scores and
// the union of strategies that matched it.
type RankedMemory struct {
	Memory     *storage.Memory       `json:"memory"`
	Scores     Scores                `json:"scores"`
	MatchTypes []retrieval.MatchType `json:"match_types"`
	// GraphDepth is the shallowest entity-graph distance at which the
	// memory was reached, zero when it was not an entity match.
	GraphDepth int `json:"graph_depth,omitempty"`
}

// Ranker computes hybrid scores over retrieval results.
type Ranker struct {
	cfg Config
	now func() time.Time
}

// NewRanker creates a ranker. The config must already be validated.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg, now: time.Now}
}

// Rank deduplicates the results by memory ID, derives the five
// normalized signals for each memory, combines them with the
// configured weights, and returns the memories in deterministic
// descending-score order.
//
// When a memory was found by several strategies, the max observed raw
// score per signal is kept and the match types are unioned. Entity
// matches additionally receive a depth-tier boost on the combined
// score, clamped so it never exceeds 1.0.
func (r *Ranker) Rank(results []retrieval.Result) []RankedMemory {
	if len(results) == 0 {
		return nil
	}

	type candidate struct {
		memory     *storage.Memory
		keywordRaw float64
		vectorRaw  float64
		graphRaw   float64
		graphDepth int
		matchTypes map[retrieval.MatchType]struct{}
	}

	seen := make(map[string]*candidate)
	for _, res := range results {
		if res.Memory == nil || res.Memory.ID == "" {
			continue
		}
		c, ok := seen[res.Memory.ID]
		if !ok {
			c = &candidate{
				memory:     res.Memory,
				matchTypes: make(map[retrieval.MatchType]struct{}),
			}
			seen[res.Memory.ID] = c
		}
		c.matchTypes[res.MatchType] = struct{}{}

		switch res.MatchType {
		case retrieval.MatchKeyword:
			if res.RawScore > c.keywordRaw {
				c.keywordRaw = res.RawScore
			}
		case retrieval.MatchVector:
			if res.RawScore > c.vectorRaw {
				c.vectorRaw = res.RawScore
			}
		case retrieval.MatchEntity:
			if res.RawScore > c.graphRaw {
				c.graphRaw = res.RawScore
				c.graphDepth = res.Depth
			}
		}
	}

	now := r.now()
	ranked := make([]RankedMemory, 0, len(seen))
	for _, c := range seen {
		scores := Scores{
			Keyword:     r.normalizeKeyword(c.keywordRaw),
			Vector:      normalizeVector(c.vectorRaw, c.matchTypes),
			Reliability: clamp01(c.memory.Confidence),
			Recency:     r.recencyScore(c.memory.CreatedAt, now),
			Frequency:   r.frequencyScore(c.memory.AccessCount),
		}

		w := r.cfg.Weights
		combined := w.Keyword*scores.Keyword +
			w.Vector*scores.Vector +
			w.Reliability*scores.Reliability +
			w.Recency*scores.Recency +
			w.Frequency*scores.Frequency

		if c.graphRaw > 0 {
			combined += c.graphRaw * r.cfg.GraphBoostWeight
		}
		scores.Combined = clamp01(combined)

		types := make([]retrieval.MatchType, 0, len(c.matchTypes))
		for t := range c.matchTypes {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		ranked = append(ranked, RankedMemory{
			Memory:     c.memory,
			Scores:     scores,
			MatchTypes: types,
			GraphDepth: c.graphDepth,
		})
	}

	// Deterministic order: combined score, then most recently
	// accessed, then memory ID.
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Scores.Combined != b.Scores.Combined {
			return a.Scores.Combined > b.Scores.Combined
		}
		at, bt := lastAccessed(a.Memory), lastAccessed(b.Memory)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.Memory.ID < b.Memory.ID
	})

	return ranked
}

// normalizeKeyword maps a raw BM25 score into [0, 1] with a smooth
// tanh curve.
func (r *Ranker) normalizeKeyword(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return clamp01(math.Tanh(raw * r.cfg.BM25Steepness))
}

// normalizeVector shifts cosine similarity from [-1, 1] to [0, 1].
// Memories never matched by the vector strategy score zero rather
// than the 0.5 a zero cosine would map to.
func normalizeVector(raw float64, matches map[retrieval.MatchType]struct{}) float64 {
	if _, ok := matches[retrieval.MatchVector]; !ok {
		return 0
	}
	return clamp01((raw + 1) / 2)
}

// recencyScore applies exponential decay with the configured
// half-life over the memory's age in days.
func (r *Ranker) recencyScore(createdAt time.Time, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0.5
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp01(math.Exp(-math.Ln2 / r.cfg.RecencyHalfLifeDays * ageDays))
}

// frequencyScore log-scales the access count so heavily accessed
// memories cannot dominate: log(1+n) / log(1+max).
func (r *Ranker) frequencyScore(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	return clamp01(math.Log(1+float64(accessCount)) / math.Log(1+float64(r.cfg.MaxAccessCount)))
}

func lastAccessed(m *storage.Memory) time.Time {
	if m.LastAccessedAt != nil {
		return *m.LastAccessedAt
	}
	return time.Time{}
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}
