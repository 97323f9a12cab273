// Package ranking merges multi-strategy retrieval results into a
// single deduplicated list ordered by a weighted combination of
// keyword, vector, reliability, recency, and frequency signals.
package ranking

import (
	"errors"
	"fmt"
	"math"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
)

// ErrInvalidWeights reports a weight configuration that does not sum
// to 1.0.
var ErrInvalidWeights = errors.New("ranking weights must sum to 1.0")

// weightTolerance is the allowed deviation of the weight sum from 1.0.
const weightTolerance = 0.01

// Weights are the relative importance of each ranking signal. They
// must sum to 1.0 within a small tolerance.
type Weights struct {
	Keyword     float64 `json:"keyword" env:"RANK_WEIGHT_KEYWORD"`
	Vector      float64 `json:"vector" env:"RANK_WEIGHT_VECTOR"`
	Reliability float64 `json:"reliability" env:"RANK_WEIGHT_RELIABILITY"`
	Recency     float64 `json:"recency" env:"RANK_WEIGHT_RECENCY"`
	Frequency   float64 `json:"frequency" env:"RANK_WEIGHT_FREQUENCY"`
}

// DefaultWeights returns the standard signal weights.
func DefaultWeights() Weights {
	return Weights{
		Keyword:     0.35,
		Vector:      0.25,
		Reliability: 0.20,
		Recency:     0.15,
		Frequency:   0.05,
	}
}

// Validate checks that the weights are non-negative and sum to 1.0.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"keyword": w.Keyword, "vector": w.Vector, "reliability": w.Reliability,
		"recency": w.Recency, "frequency": w.Frequency,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s weight is negative", ErrInvalidWeights, name)
		}
	}
	sum := w.Keyword + w.Vector + w.Reliability + w.Recency + w.Frequency
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: got %.3f", ErrInvalidWeights, sum)
	}
	return nil
}

// WeightsForIntent returns intent-adapted weights: recall favors
// keywords and recency, questions favor semantic similarity and
// reliability, conversation spreads more evenly.
func WeightsForIntent(intent analyzer.Intent) Weights {
	switch intent {
	case analyzer.IntentRecall:
		return Weights{Keyword: 0.40, Vector: 0.15, Reliability: 0.15, Recency: 0.25, Frequency: 0.05}
	case analyzer.IntentQuestion:
		return Weights{Keyword: 0.20, Vector: 0.35, Reliability: 0.30, Recency: 0.10, Frequency: 0.05}
	case analyzer.IntentConversation:
		return Weights{Keyword: 0.30, Vector: 0.25, Reliability: 0.20, Recency: 0.20, Frequency: 0.05}
	default:
		return DefaultWeights()
	}
}

// Config tunes the ranker's normalization curves.
type Config struct {
	// Weights are the signal weights.
	Weights Weights `json:"weights"`
	// BM25Steepness scales raw BM25 scores before tanh normalization.
	BM25Steepness float64 `json:"bm25_steepness" env:"RANK_BM25_STEEPNESS"`
	// RecencyHalfLifeDays is the half-life of the recency decay.
	RecencyHalfLifeDays float64 `json:"recency_half_life_days" env:"RANK_RECENCY_HALF_LIFE_DAYS"`
	// MaxAccessCount is the access count at which the frequency
	// signal saturates at 1.0.
	MaxAccessCount int `json:"max_access_count" env:"RANK_MAX_ACCESS_COUNT"`
	// GraphBoostWeight scales the depth-tier score of entity graph
	// matches into a combined-score boost.
	GraphBoostWeight float64 `json:"graph_boost_weight" env:"RANK_GRAPH_BOOST_WEIGHT"`
}

// DefaultConfig returns the standard ranker configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		BM25Steepness:       0.2,
		RecencyHalfLifeDays: 30,
		MaxAccessCount:      1000,
		GraphBoostWeight:    0.1,
	}
}

// Validate checks the configuration, filling zero values with
// defaults before checking.
func (c *Config) Validate() error {
	if c.BM25Steepness == 0 {
		c.BM25Steepness = 0.2
	}
	if c.RecencyHalfLifeDays == 0 {
		c.RecencyHalfLifeDays = 30
	}
	if c.MaxAccessCount == 0 {
		c.MaxAccessCount = 1000
	}
	if c.BM25Steepness < 0 || c.RecencyHalfLifeDays < 0 || c.MaxAccessCount < 0 || c.GraphBoostWeight < 0 {
		return fmt.Errorf("ranking config: negative tuning parameter")
	}
	return c.Weights.Validate()
}
