package ranking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/ranking"
)

func TestDefaultWeightsValid(t *testing.T) {
	assert.NoError(t, ranking.DefaultWeights().Validate())
}

func TestWeightsMustSumToOne(t *testing.T) {
	w := ranking.Weights{Keyword: 0.5, Vector: 0.5, Reliability: 0.5}
	err := w.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ranking.ErrInvalidWeights)
}

func TestWeightsToleranceAllowed(t *testing.T) {
	w := ranking.DefaultWeights()
	w.Keyword += 0.009
	assert.NoError(t, w.Validate())

	w.Keyword += 0.01
	assert.Error(t, w.Validate())
}

func TestNegativeWeightRejected(t *testing.T) {
	w := ranking.Weights{Keyword: 1.2, Vector: -0.2}
	err := w.Validate()
	assert.ErrorIs(t, err, ranking.ErrInvalidWeights)
}

func TestWeightsForIntentAllValid(t *testing.T) {
	for _, intent := range []analyzer.Intent{
		analyzer.IntentRecall,
		analyzer.IntentQuestion,
		analyzer.IntentCommand,
		analyzer.IntentConversation,
	} {
		w := ranking.WeightsForIntent(intent)
		assert.NoError(t, w.Validate(), "intent %s", intent)
	}
}

func TestWeightsForIntentRecallFavorsKeywords(t *testing.T) {
	w := ranking.WeightsForIntent(analyzer.IntentRecall)
	assert.Greater(t, w.Keyword, w.Vector)
	assert.Greater(t, w.Recency, ranking.DefaultWeights().Recency)
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := ranking.Config{Weights: ranking.DefaultWeights()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.BM25Steepness)
	assert.Equal(t, 30.0, cfg.RecencyHalfLifeDays)
	assert.Equal(t, 1000, cfg.MaxAccessCount)
}

func TestConfigValidateRejectsNegatives(t *testing.T) {
	cfg := ranking.DefaultConfig()
	cfg.GraphBoostWeight = -0.1
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadWeights(t *testing.T) {
	cfg := ranking.DefaultConfig()
	cfg.Weights.Vector = 0.9
	assert.ErrorIs(t, cfg.Validate(), ranking.ErrInvalidWeights)
}
