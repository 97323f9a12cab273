package analyzer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/storage"
)

func TestDetectIntent(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()
	ctx := context.Background()

	cases := []struct {
		query  string
		intent analyzer.Intent
	}{
		{"What did I tell you about my project last week?", analyzer.IntentRecall},
		{"Do you remember my favorite editor?", analyzer.IntentRecall},
		{"What was the restaurant we discussed?", analyzer.IntentRecall},
		{"How does garbage collection work?", analyzer.IntentQuestion},
		{"Is the deployment finished?", analyzer.IntentQuestion},
		{"Explain the difference between maps and slices", analyzer.IntentQuestion},
		{"Create a new config file for staging", analyzer.IntentCommand},
		{"Fix the failing pipeline", analyzer.IntentCommand},
		{"I had a great weekend hiking", analyzer.IntentConversation},
	}

	for _, tc := range cases {
		result, err := a.Analyze(ctx, tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.intent, result.Intent, "query: %s", tc.query)
	}
}

func TestKeywordExtraction(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()

	result, err := a.Analyze(context.Background(), "Tell me about the database migration plan")
	require.NoError(t, err)

	assert.Contains(t, result.Keywords, "database")
	assert.Contains(t, result.Keywords, "migration")
	assert.Contains(t, result.Keywords, "plan")
	// Stopwords and short words are dropped.
	assert.NotContains(t, result.Keywords, "the")
	assert.NotContains(t, result.Keywords, "me")
}

func TestKeywordCap(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()

	// Far more than MaxKeywords distinct long words.
	words := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
		"hotel", "india", "juliet", "kilo", "lima", "mike", "november",
	}
	result, err := a.Analyze(context.Background(), strings.Join(words, " "))
	require.NoError(t, err)

	assert.Len(t, result.Keywords, analyzer.MaxKeywords)
	// Order of appearance is preserved.
	assert.Equal(t, "alpha", result.Keywords[0])
}

func TestKeywordDeduplication(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()

	result, err := a.Analyze(context.Background(), "docker docker docker compose")
	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "compose"}, result.Keywords)
}

func TestEntityDetection(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()

	result, err := a.Analyze(context.Background(), "I heard Alice Johnson joined the NASA project with @bob")
	require.NoError(t, err)

	assert.Contains(t, result.Entities, "Alice Johnson")
	assert.Contains(t, result.Entities, "NASA")
	assert.Contains(t, result.Entities, "@bob")
}

func TestTopicExtraction(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()

	result, err := a.Analyze(context.Background(), `Tell me about kubernetes networking and "service mesh"`)
	require.NoError(t, err)

	assert.Contains(t, result.Topics, "kubernetes networking")
	assert.Contains(t, result.Topics, "service mesh")
}

func TestTimeReference(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()
	ctx := context.Background()

	cases := []struct {
		query string
		kind  string
	}{
		{"what happened yesterday", "recent"},
		{"summarize last week", "week"},
		{"plans for today", "present"},
		{"no temporal words here", ""},
	}
	for _, tc := range cases {
		result, err := a.Analyze(ctx, tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.kind, result.TimeReference, "query: %s", tc.query)
	}
}

func TestRequiresMemory(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()
	ctx := context.Background()

	// Recall always needs memory.
	r, err := a.Analyze(ctx, "what did I say about the budget")
	require.NoError(t, err)
	assert.True(t, r.RequiresMemory)

	// A question with personal pronouns needs memory.
	r, err = a.Analyze(ctx, "what is my preferred deployment region")
	require.NoError(t, err)
	assert.True(t, r.RequiresMemory)

	// An impersonal factual question does not.
	r, err = a.Analyze(ctx, "what is the capital of France")
	require.NoError(t, err)
	assert.False(t, r.RequiresMemory)

	// An impersonal command does not.
	r, err = a.Analyze(ctx, "create a readme file")
	require.NoError(t, err)
	assert.False(t, r.RequiresMemory)

	// A command touching preferences does.
	r, err = a.Analyze(ctx, "update my usual settings")
	require.NoError(t, err)
	assert.True(t, r.RequiresMemory)
}

func TestMemoryTypesByIntent(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()
	ctx := context.Background()

	r, err := a.Analyze(ctx, "do you remember our last conversation")
	require.NoError(t, err)
	assert.Equal(t, storage.AllTypes, r.MemoryTypes)

	r, err = a.Analyze(ctx, "how do I configure my linter step by step")
	require.NoError(t, err)
	assert.Contains(t, r.MemoryTypes, storage.TypeProcedural)

	r, err = a.Analyze(ctx, "create a branch")
	require.NoError(t, err)
	assert.ElementsMatch(t, []storage.MemoryType{storage.TypeProcedural, storage.TypeProfile}, r.MemoryTypes)
}

func TestConfidence(t *testing.T) {
	a := analyzer.NewRuleAnalyzer()
	ctx := context.Background()

	// Recall intent with several keywords and reasonable length is
	// high confidence.
	r, err := a.Analyze(ctx, "do you remember the database migration plan we discussed")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Confidence, 0.8)

	// A vague short message stays near the base.
	r, err = a.Analyze(ctx, "hey there")
	require.NoError(t, err)
	assert.LessOrEqual(t, r.Confidence, 0.6)

	r, err = a.Analyze(ctx, "anything")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Confidence, 0.0)
	assert.LessOrEqual(t, r.Confidence, 1.0)
}

func TestFallback(t *testing.T) {
	f := analyzer.Fallback("some query")

	assert.Equal(t, "some query", f.OriginalQuery)
	assert.Equal(t, analyzer.IntentConversation, f.Intent)
	assert.True(t, f.RequiresMemory)
	assert.Equal(t, storage.AllTypes, f.MemoryTypes)
	assert.Zero(t, f.Confidence)
}
