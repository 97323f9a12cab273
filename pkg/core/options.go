package core

import (
	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/contextpack"
	"github.com/jyntrix/memctx-go/pkg/embedder"
	"github.com/jyntrix/memctx-go/pkg/llm"
	"github.com/jyntrix/memctx-go/pkg/storage"
	"github.com/jyntrix/memctx-go/pkg/tokenizer"
)

// Option customizes a Client at construction, mainly to inject
// pre-built collaborators (tests, embedded deployments).
type Option func(*Client)

// WithStore injects a pre-built storage backend, overriding the
// configured provider.
func WithStore(store storage.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithVectorIndex injects a pre-built vector index.
func WithVectorIndex(index storage.VectorIndex) Option {
	return func(c *Client) { c.index = index }
}

// WithEmbedder injects a pre-built embedding provider. The provider is
// used as-is; wrap it in embedder.NewCache for caching.
func WithEmbedder(provider embedder.Provider) Option {
	return func(c *Client) { c.embedder = provider }
}

// WithLLM injects a pre-built LLM provider for analysis refinement.
func WithLLM(provider llm.Provider) Option {
	return func(c *Client) { c.llm = provider }
}

// WithAnalyzer injects a custom query analyzer.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(c *Client) { c.analyzer = a }
}

// WithTokenCounter overrides the token counter used for budgeting.
func WithTokenCounter(counter tokenizer.Counter) Option {
	return func(c *Client) { c.counter = counter }
}

// buildOptions carries per-call BuildContext settings.
type buildOptions struct {
	history         []string
	limit           int
	budget          contextpack.TokenBudget
	budgetOverride  bool
	adaptiveWeights bool
}

// BuildOption customizes a single BuildContext call.
type BuildOption func(*buildOptions)

// WithConversationHistory includes the trailing conversation turns in
// the context's history section.
func WithConversationHistory(turns []string) BuildOption {
	return func(o *buildOptions) { o.history = turns }
}

// WithBudget overrides the token budget for this call. The budget must
// be valid; invalid overrides are caught by the builder's arithmetic
// rather than validated per call.
func WithBudget(budget contextpack.TokenBudget) BuildOption {
	return func(o *buildOptions) {
		o.budget = budget
		o.budgetOverride = true
	}
}

// WithLimit overrides the per-strategy result cap for this call.
func WithLimit(limit int) BuildOption {
	return func(o *buildOptions) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

// WithAdaptiveWeights re-weights ranking signals by the detected query
// intent: recall queries favor keywords and recency, questions favor
// semantic similarity and reliability.
func WithAdaptiveWeights() BuildOption {
	return func(o *buildOptions) { o.adaptiveWeights = true }
}
