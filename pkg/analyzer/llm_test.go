package analyzer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/llm"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(_ context.Context, _ []llm.Message, _ llm.GenerateOptions) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) Close() error { return nil }

func TestLLMRefinementLowConfidence(t *testing.T) {
	provider := &fakeLLM{response: `{
		"intent": "recall",
		"keywords": ["standup", "notes"],
		"entities": ["Atlas"],
		"requires_memory": true,
		"memory_types": ["episodic", "semantic"]
	}`}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	// A vague message with rule-based confidence below the threshold.
	result, err := a.Analyze(context.Background(), "that thing again")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, analyzer.IntentRecall, result.Intent)
	assert.Equal(t, []string{"standup", "notes"}, result.Keywords)
	assert.Equal(t, []string{"Atlas"}, result.Entities)
	assert.True(t, result.RequiresMemory)
	assert.Equal(t, []storage.MemoryType{storage.TypeEpisodic, storage.TypeSemantic}, result.MemoryTypes)
}

func TestLLMSkippedWhenConfident(t *testing.T) {
	provider := &fakeLLM{response: `{}`}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	// High-confidence recall query never reaches the LLM.
	_, err := a.Analyze(context.Background(), "do you remember the database migration plan we discussed")
	require.NoError(t, err)
	assert.Zero(t, provider.calls)
}

func TestLLMFailureFallsBackToRules(t *testing.T) {
	provider := &fakeLLM{err: errors.New("upstream timeout")}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	result, err := a.Analyze(context.Background(), "that thing again")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	// The rule-based analysis survives intact.
	assert.Equal(t, "that thing again", result.OriginalQuery)
}

func TestLLMInvalidJSONFallsBack(t *testing.T) {
	provider := &fakeLLM{response: "sorry, I cannot help with that"}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	result, err := a.Analyze(context.Background(), "that thing again")
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestLLMFencedJSONAccepted(t *testing.T) {
	provider := &fakeLLM{response: "```json\n{\"intent\": \"question\", \"requires_memory\": false}\n```"}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	result, err := a.Analyze(context.Background(), "that thing again")
	require.NoError(t, err)
	assert.Equal(t, analyzer.IntentQuestion, result.Intent)
	assert.False(t, result.RequiresMemory)
}

func TestLLMInvalidIntentIgnored(t *testing.T) {
	provider := &fakeLLM{response: `{"intent": "banana", "requires_memory": true}`}
	a := analyzer.NewLLMAnalyzer(provider, zerolog.Nop())

	result, err := a.Analyze(context.Background(), "that thing again")
	require.NoError(t, err)
	// The rule-based intent is kept when the LLM returns garbage.
	assert.Equal(t, analyzer.IntentConversation, result.Intent)
}
