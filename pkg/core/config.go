package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jyntrix/memctx-go/pkg/contextpack"
	"github.com/jyntrix/memctx-go/pkg/ranking"
)

// Provider names accepted by the configuration.
const (
	StorageSQLite    = "sqlite"
	StoragePostgres  = "postgres"
	StorageOceanBase = "oceanbase"
	StorageInMemory  = "inmem"

	VectorFromStore = "store"
	VectorChromem   = "chromem"

	EmbedderOpenAI = "openai"
	EmbedderQwen   = "qwen"
)

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Provider string `json:"provider" env:"STORAGE_PROVIDER" envDefault:"sqlite"`

	// SQLite settings.
	DBPath string `json:"db_path" env:"SQLITE_DB_PATH" envDefault:"memctx.db"`

	// Postgres / OceanBase settings.
	Host     string `json:"host" env:"DB_HOST" envDefault:"localhost"`
	Port     int    `json:"port" env:"DB_PORT"`
	User     string `json:"user" env:"DB_USER"`
	Password string `json:"password" env:"DB_PASSWORD"`
	DBName   string `json:"db_name" env:"DB_NAME" envDefault:"memctx"`
	SSLMode  string `json:"ssl_mode" env:"DB_SSL_MODE"`

	// NodeID seeds the ID generator (0-1023).
	NodeID int64 `json:"node_id" env:"STORAGE_NODE_ID"`
}

// VectorConfig selects the vector index. By default the storage
// backend's own index is used; "chromem" switches to an embedded
// chromem-go index.
type VectorConfig struct {
	Provider    string `json:"provider" env:"VECTOR_PROVIDER" envDefault:"store"`
	PersistPath string `json:"persist_path" env:"CHROMEM_PERSIST_PATH"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	Provider   string `json:"provider" env:"EMBEDDER_PROVIDER" envDefault:"openai"`
	APIKey     string `json:"-" env:"EMBEDDER_API_KEY"`
	Model      string `json:"model" env:"EMBEDDER_MODEL"`
	BaseURL    string `json:"base_url" env:"EMBEDDER_BASE_URL"`
	Dimensions int    `json:"dimensions" env:"EMBEDDER_DIMENSIONS"`
	CacheSize  int    `json:"cache_size" env:"EMBEDDER_CACHE_SIZE"`
}

// LLMConfig configures the optional LLM used for query analysis
// refinement. Analysis stays rule-based when APIKey is empty.
type LLMConfig struct {
	APIKey  string `json:"-" env:"LLM_API_KEY"`
	Model   string `json:"model" env:"LLM_MODEL"`
	BaseURL string `json:"base_url" env:"LLM_BASE_URL"`
}

// RedisConfig configures the optional retrieval result cache. Caching
// is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string        `json:"addr" env:"REDIS_ADDR"`
	Password string        `json:"-" env:"REDIS_PASSWORD"`
	DB       int           `json:"db" env:"REDIS_DB"`
	TTL      time.Duration `json:"ttl" env:"REDIS_CACHE_TTL" envDefault:"5m"`
}

// RetrievalConfig tunes the retrieval pass.
type RetrievalConfig struct {
	// LimitPerStrategy caps results per strategy.
	LimitPerStrategy int `json:"limit_per_strategy" env:"RETRIEVAL_LIMIT" envDefault:"10"`

	// CandidateLimit bounds the per-query candidate fetch the keyword
	// strategy indexes with BM25.
	CandidateLimit int `json:"candidate_limit" env:"RETRIEVAL_CANDIDATE_LIMIT" envDefault:"1000"`

	// GraphDepth bounds entity graph traversal.
	GraphDepth int `json:"graph_depth" env:"RETRIEVAL_GRAPH_DEPTH" envDefault:"2"`

	// StrategyTimeout bounds each strategy's share of a pass.
	StrategyTimeout time.Duration `json:"strategy_timeout" env:"RETRIEVAL_STRATEGY_TIMEOUT" envDefault:"5s"`
}

// Config is the complete client configuration. Construct it with
// DefaultConfig, LoadConfigFromEnv, or LoadConfigFromJSON and pass it
// to NewClient; it is validated once there and treated as immutable
// afterwards.
type Config struct {
	Storage   StorageConfig           `json:"storage"`
	Vector    VectorConfig            `json:"vector"`
	Embedder  EmbedderConfig          `json:"embedder"`
	LLM       LLMConfig               `json:"llm"`
	Redis     RedisConfig             `json:"redis"`
	Retrieval RetrievalConfig         `json:"retrieval"`
	Ranking   ranking.Config          `json:"ranking"`
	Budget    contextpack.TokenBudget `json:"budget"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level" env:"LOG_LEVEL" envDefault:"info"`
}

// DefaultConfig returns a configuration with every tunable at its
// standard value: sqlite storage, the store's own vector index, and
// rule-based analysis.
func DefaultConfig() *Config {
	return &Config{
		Storage:   StorageConfig{Provider: StorageSQLite, DBPath: "memctx.db", DBName: "memctx"},
		Vector:    VectorConfig{Provider: VectorFromStore},
		Embedder:  EmbedderConfig{Provider: EmbedderOpenAI},
		Retrieval: RetrievalConfig{LimitPerStrategy: 10, CandidateLimit: 1000, GraphDepth: 2, StrategyTimeout: 5 * time.Second},
		Ranking:   ranking.DefaultConfig(),
		Budget:    contextpack.DefaultBudget(),
		LogLevel:  "info",
	}
}

// LoadConfigFromEnv builds a Config from environment variables,
// loading a .env file first when one is found in the working directory
// or any parent.
func LoadConfigFromEnv() (*Config, error) {
	if path := FindEnvFile(); path != "" {
		// Existing environment variables win over .env entries.
		_ = godotenv.Load(path)
	}
	return parseEnvConfig()
}

// LoadConfigFromEnvFile builds a Config from environment variables
// after loading the given .env file.
func LoadConfigFromEnvFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return parseEnvConfig()
}

// LoadConfigFromJSON builds a Config from a JSON file. Fields the file
// omits keep their defaults.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnvConfig() (*Config, error) {
	cfg := &Config{
		Ranking: ranking.DefaultConfig(),
		Budget:  contextpack.DefaultBudget(),
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, failing fast on anything the
// pipeline could not run with.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case StorageSQLite, StoragePostgres, StorageOceanBase, StorageInMemory:
	default:
		return fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, c.Storage.Provider)
	}

	switch c.Vector.Provider {
	case "", VectorFromStore, VectorChromem:
	default:
		return fmt.Errorf("%w: unknown vector provider %q", ErrInvalidConfig, c.Vector.Provider)
	}

	switch c.Embedder.Provider {
	case EmbedderOpenAI, EmbedderQwen:
	default:
		return fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}

	if c.Retrieval.LimitPerStrategy < 0 || c.Retrieval.CandidateLimit < 0 || c.Retrieval.GraphDepth < 0 {
		return fmt.Errorf("%w: negative retrieval limit", ErrInvalidConfig)
	}

	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// FindEnvFile searches for a .env file starting from the working
// directory and walking up, returning its path or "".
func FindEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
