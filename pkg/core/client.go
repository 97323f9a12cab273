// Package core wires the retrieval pipeline together behind a single
// Client: query analysis, multi-strategy retrieval, hybrid ranking,
// and token-budgeted context assembly.
package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jyntrix/memctx-go/pkg/analyzer"
	"github.com/jyntrix/memctx-go/pkg/contextpack"
	"github.com/jyntrix/memctx-go/pkg/embedder"
	embopenai "github.com/jyntrix/memctx-go/pkg/embedder/openai"
	embqwen "github.com/jyntrix/memctx-go/pkg/embedder/qwen"
	"github.com/jyntrix/memctx-go/pkg/llm"
	llmopenai "github.com/jyntrix/memctx-go/pkg/llm/openai"
	"github.com/jyntrix/memctx-go/pkg/ranking"
	"github.com/jyntrix/memctx-go/pkg/retrieval"
	"github.com/jyntrix/memctx-go/pkg/storage"
	"github.com/jyntrix/memctx-go/pkg/storage/chromem"
	"github.com/jyntrix/memctx-go/pkg/storage/inmem"
	"github.com/jyntrix/memctx-go/pkg/storage/oceanbase"
	"github.com/jyntrix/memctx-go/pkg/storage/postgres"
	"github.com/jyntrix/memctx-go/pkg/storage/sqlite"
	"github.com/jyntrix/memctx-go/pkg/tokenizer"
)

// retriever is satisfied by both the plain and the cached coordinator.
type retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Result, []retrieval.Failure, error)
}

// Client is the top-level entry point: given a user and a query it
// produces a ranked, deduplicated, budget-bounded memory context.
type Client struct {
	cfg *Config

	store    storage.Store
	index    storage.VectorIndex
	embedder embedder.Provider
	llm      llm.Provider
	analyzer analyzer.Analyzer

	retriever retriever
	cache     *retrieval.CachedCoordinator
	redis     *redis.Client

	ranker  *ranking.Ranker
	builder *contextpack.Builder
	counter tokenizer.Counter

	logger zerolog.Logger
}

// NewClient creates a fully wired client from cfg, failing fast on
// configuration errors.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, opErr("NewClient", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().Str("service", "memctx").Logger()

	c := &Client{
		cfg:     cfg,
		counter: tokenizer.NewTiktoken(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initStorage(); err != nil {
		return nil, opErr("NewClient", err)
	}
	if err := c.initEmbedder(); err != nil {
		return nil, opErr("NewClient", err)
	}
	if err := c.initLLM(); err != nil {
		return nil, opErr("NewClient", err)
	}
	if err := c.initVectorIndex(); err != nil {
		return nil, opErr("NewClient", err)
	}
	c.initPipeline()

	return c, nil
}

func (c *Client) initStorage() error {
	if c.store != nil {
		return nil
	}
	var err error
	switch c.cfg.Storage.Provider {
	case StorageSQLite:
		c.store, err = sqlite.NewClient(&sqlite.Config{
			DBPath: c.cfg.Storage.DBPath,
			NodeID: c.cfg.Storage.NodeID,
		})
	case StoragePostgres:
		c.store, err = postgres.NewClient(&postgres.Config{
			Host:               c.cfg.Storage.Host,
			Port:               c.cfg.Storage.Port,
			User:               c.cfg.Storage.User,
			Password:           c.cfg.Storage.Password,
			DBName:             c.cfg.Storage.DBName,
			SSLMode:            c.cfg.Storage.SSLMode,
			EmbeddingModelDims: c.embedDims(),
			NodeID:             c.cfg.Storage.NodeID,
		})
	case StorageOceanBase:
		c.store, err = oceanbase.NewClient(&oceanbase.Config{
			Host:               c.cfg.Storage.Host,
			Port:               c.cfg.Storage.Port,
			User:               c.cfg.Storage.User,
			Password:           c.cfg.Storage.Password,
			DBName:             c.cfg.Storage.DBName,
			EmbeddingModelDims: c.embedDims(),
			NodeID:             c.cfg.Storage.NodeID,
		})
	case StorageInMemory:
		c.store = inmem.NewStore()
	default:
		err = fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, c.cfg.Storage.Provider)
	}
	return err
}

func (c *Client) initEmbedder() error {
	if c.embedder != nil {
		return nil
	}
	var provider embedder.Provider
	var err error
	switch c.cfg.Embedder.Provider {
	case EmbedderOpenAI:
		provider, err = embopenai.NewClient(embopenai.Config{
			APIKey:     c.cfg.Embedder.APIKey,
			Model:      c.cfg.Embedder.Model,
			BaseURL:    c.cfg.Embedder.BaseURL,
			Dimensions: c.cfg.Embedder.Dimensions,
		})
	case EmbedderQwen:
		provider, err = embqwen.NewClient(embqwen.Config{
			APIKey:     c.cfg.Embedder.APIKey,
			Model:      c.cfg.Embedder.Model,
			BaseURL:    c.cfg.Embedder.BaseURL,
			Dimensions: c.cfg.Embedder.Dimensions,
		})
	default:
		err = fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, c.cfg.Embedder.Provider)
	}
	if err != nil {
		return err
	}

	cached, err := embedder.NewCache(provider, c.cfg.Embedder.CacheSize)
	if err != nil {
		return err
	}
	c.embedder = cached
	return nil
}

func (c *Client) initLLM() error {
	if c.llm != nil || c.cfg.LLM.APIKey == "" {
		return nil
	}
	provider, err := llmopenai.NewClient(llmopenai.Config{
		APIKey:  c.cfg.LLM.APIKey,
		Model:   c.cfg.LLM.Model,
		BaseURL: c.cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	c.llm = provider
	return nil
}

func (c *Client) initVectorIndex() error {
	if c.index != nil {
		return nil
	}
	if c.cfg.Vector.Provider == VectorChromem {
		index, err := chromem.NewIndex(&chromem.Config{
			PersistPath: c.cfg.Vector.PersistPath,
		})
		if err != nil {
			return err
		}
		c.index = index
		return nil
	}
	c.index = c.store
	return nil
}

func (c *Client) initPipeline() {
	if c.analyzer == nil {
		if c.llm != nil {
			c.analyzer = analyzer.NewLLMAnalyzer(c.llm, c.logger)
		} else {
			c.analyzer = analyzer.NewRuleAnalyzer()
		}
	}

	strategies := []retrieval.Strategy{
		retrieval.NewVectorStrategy(c.index, c.embedder),
		retrieval.NewKeywordStrategy(c.store, c.cfg.Retrieval.CandidateLimit),
		retrieval.NewGraphStrategy(c.store, c.cfg.Retrieval.GraphDepth, retrieval.DefaultGraphScores()),
		retrieval.NewProfileStrategy(c.store),
		retrieval.NewRecencyStrategy(c.store),
	}
	coordinator := retrieval.NewCoordinator(strategies, c.logger,
		retrieval.WithStrategyTimeout(c.cfg.Retrieval.StrategyTimeout))

	if c.cfg.Redis.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
		c.cache = retrieval.NewCachedCoordinator(coordinator, c.redis, c.cfg.Redis.TTL, c.logger)
		c.retriever = c.cache
	} else {
		c.retriever = coordinator
	}

	c.ranker = ranking.NewRanker(c.cfg.Ranking)
	c.builder = contextpack.NewBuilder(c.cfg.Budget, c.counter)
}

// embedDims returns the configured embedding dimension, defaulting per
// provider.
func (c *Client) embedDims() int {
	if c.cfg.Embedder.Dimensions > 0 {
		return c.cfg.Embedder.Dimensions
	}
	if c.cfg.Embedder.Provider == EmbedderQwen {
		return 1024
	}
	return 1536
}

// BuildContext runs the full pipeline for one query: analyze, retrieve
// across all strategies, rank, and pack into the token budget.
//
// Analysis failures degrade to a conservative all-types retrieval, and
// individual strategy failures are absorbed; the operation only errors
// when the input is invalid or the context is cancelled. A user with
// no memories gets a valid empty context.
func (c *Client) BuildContext(ctx context.Context, userID, query string, opts ...BuildOption) (*contextpack.MemoryContext, error) {
	const op = "BuildContext"
	if userID == "" {
		return nil, opErr(op, ErrMissingUserID)
	}

	options := buildOptions{
		limit:  c.cfg.Retrieval.LimitPerStrategy,
		budget: c.cfg.Budget,
	}
	for _, opt := range opts {
		opt(&options)
	}

	start := time.Now()

	a, err := c.analyzer.Analyze(ctx, query)
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).
			Msg("query analysis failed, using fallback")
		a = analyzer.Fallback(query)
	}

	results, failures, err := c.retriever.Retrieve(ctx, retrieval.Query{
		UserID:   userID,
		Text:     query,
		Analysis: a,
		Limit:    options.limit,
	})
	if err != nil {
		return nil, opErr(op, err)
	}

	ranker := c.ranker
	if options.adaptiveWeights {
		cfg := c.cfg.Ranking
		cfg.Weights = ranking.WeightsForIntent(a.Intent)
		ranker = ranking.NewRanker(cfg)
	}
	ranked := ranker.Rank(results)

	builder := c.builder
	if options.budgetOverride {
		builder = contextpack.NewBuilder(options.budget, c.counter)
	}
	memoryContext := builder.Build(ranked, options.history)

	c.logger.Info().
		Str("user_id", userID).
		Str("intent", string(a.Intent)).
		Int("candidates", len(results)).
		Int("ranked", len(ranked)).
		Int("strategy_failures", len(failures)).
		Int("total_tokens", memoryContext.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("context built")

	return memoryContext, nil
}

// Add stores a new memory: the content is embedded, inserted into the
// document store and vector index, and linked to the given entities.
func (c *Client) Add(ctx context.Context, memory *storage.Memory, entities ...string) error {
	const op = "Add"
	if memory == nil || memory.UserID == "" {
		return opErr(op, ErrMissingUserID)
	}

	if len(memory.Embedding) == 0 && memory.Content != "" {
		vector, err := c.embedder.Embed(ctx, memory.Content)
		if err != nil {
			return opErr(op, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
		}
		memory.Embedding = vector
	}

	if err := c.store.Insert(ctx, memory); err != nil {
		return opErr(op, fmt.Errorf("%w: %w", ErrStoreOperation, err))
	}
	// Mirror into the separate vector index when one is configured.
	if c.index != storage.VectorIndex(c.store) {
		if err := c.index.Insert(ctx, memory); err != nil {
			return opErr(op, fmt.Errorf("%w: %w", ErrStoreOperation, err))
		}
	}

	for _, entity := range entities {
		if err := c.store.LinkEntity(ctx, memory.UserID, memory.ID, entity); err != nil {
			return opErr(op, fmt.Errorf("%w: %w", ErrStoreOperation, err))
		}
	}

	c.invalidateCache(ctx, memory.UserID)
	return nil
}

// Get retrieves a single memory by ID.
func (c *Client) Get(ctx context.Context, userID, id string) (*storage.Memory, error) {
	m, err := c.store.Get(ctx, userID, id)
	if err != nil {
		return nil, opErr("Get", err)
	}
	return m, nil
}

// Delete removes a memory by ID.
func (c *Client) Delete(ctx context.Context, userID, id string) error {
	if err := c.store.Delete(ctx, userID, id); err != nil {
		return opErr("Delete", fmt.Errorf("%w: %w", ErrStoreOperation, err))
	}
	c.invalidateCache(ctx, userID)
	return nil
}

// Relate records a relationship between two entities in the user's
// graph.
func (c *Client) Relate(ctx context.Context, userID, sourceEntity, targetEntity, relation string) error {
	if err := c.store.Relate(ctx, userID, sourceEntity, targetEntity, relation); err != nil {
		return opErr("Relate", fmt.Errorf("%w: %w", ErrStoreOperation, err))
	}
	c.invalidateCache(ctx, userID)
	return nil
}

// MarkAccessed bumps access counts after a built context has actually
// been consumed, feeding the frequency ranking signal.
func (c *Client) MarkAccessed(ctx context.Context, userID string, ids []string) error {
	if err := c.store.IncrementAccess(ctx, userID, ids); err != nil {
		return opErr("MarkAccessed", fmt.Errorf("%w: %w", ErrStoreOperation, err))
	}
	return nil
}

func (c *Client) invalidateCache(ctx context.Context, userID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, userID); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("cache invalidation failed")
	}
}

// Close releases all resources held by the client.
func (c *Client) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.index != nil && c.index != storage.VectorIndex(c.store) {
		record(c.index.Close())
	}
	if c.store != nil {
		record(c.store.Close())
	}
	if c.embedder != nil {
		record(c.embedder.Close())
	}
	if c.llm != nil {
		record(c.llm.Close())
	}
	if c.redis != nil {
		record(c.redis.Close())
	}
	return opErr("Close", firstErr)
}
