// Package postgres provides a PostgreSQL + pgvector implementation of
// storage.Store. Similarity search runs server-side with pgvector's
// cosine distance operator, pre-filtered by user.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	db         *sql.DB
	dimensions int
	node       *snowflake.Node
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
	SSLMode            string
	NodeID             int64
}

// NewClient creates a PostgreSQL store, enabling the pgvector
// extension and creating the schema when missing.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db, dimensions: cfg.EmbeddingModelDims, node: node}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// initTables enables pgvector and initializes the schema.
func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			keywords JSONB,
			embedding vector(%d),
			confidence DOUBLE PRECISION DEFAULT 0.5,
			importance DOUBLE PRECISION DEFAULT 0.5,
			access_count INTEGER DEFAULT 0,
			last_accessed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			metadata JSONB
		)`, c.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(512) NOT NULL,
			UNIQUE(user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_relations (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			source_entity_id BIGINT NOT NULL,
			target_entity_id BIGINT NOT NULL,
			relation VARCHAR(255),
			UNIQUE(user_id, source_entity_id, target_entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entities (
			memory_id BIGINT NOT NULL,
			entity_id BIGINT NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (memory_id, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(user_id, entity_id)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// Search implements storage.VectorIndex using pgvector's <=> operator
// (cosine distance, 1 - cosine similarity). The user filter applies in
// the WHERE clause before distance ordering.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.VectorSearchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateVectorSearchOptions(opts); err != nil {
		return nil, err
	}

	query := `SELECT ` + memoryColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM memories WHERE user_id = $2 AND embedding IS NOT NULL`
	args := []interface{}{vectorLiteral(embedding), opts.UserID}

	if len(opts.Types) > 0 {
		placeholders := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND memory_type IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY embedding <=> $1"
	if opts.TopK > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.TopK)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer rows.Close()

	var results []*storage.Memory
	for rows.Next() {
		m, score, err := scanMemoryWithScore(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if score < opts.MinScore {
			continue
		}
		m.Score = score
		results = append(results, m)
	}
	return results, rows.Err()
}

// Fetch implements storage.DocumentStore.
func (c *Client) Fetch(ctx context.Context, opts *storage.FetchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateFetchOptions(opts); err != nil {
		return nil, err
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = $1`
	args := []interface{}{opts.UserID}

	if len(opts.Types) > 0 {
		placeholders := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND memory_type IN (%s)", strings.Join(placeholders, ","))
	}

	switch opts.OrderBy {
	case storage.OrderByConfidence:
		query += " ORDER BY confidence DESC, id ASC"
	default:
		query += " ORDER BY created_at DESC, id ASC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	defer rows.Close()

	var results []*storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("Fetch: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// Get implements storage.DocumentStore.
func (c *Client) Get(ctx context.Context, userID, id string) (*storage.Memory, error) {
	if userID == "" {
		return nil, storage.ErrMissingUserID
	}
	row := c.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = $1 AND id = $2`, userID, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: memory %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return m, nil
}

// Insert implements storage.DocumentStore and storage.VectorIndex.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.UserID == "" {
		return storage.ErrMissingUserID
	}
	if memory.ID == "" {
		memory.ID = c.node.Generate().String()
	}
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now

	keywords, metadata, err := encodeJSON(memory)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	var embedding interface{}
	if len(memory.Embedding) > 0 {
		embedding = vectorLiteral(memory.Embedding)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, memory_type, content, keywords, embedding,
			confidence, importance, access_count, last_accessed_at, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		memory.ID, memory.UserID, string(memory.Type), memory.Content, keywords, embedding,
		memory.Confidence, memory.Importance, memory.AccessCount, memory.LastAccessedAt,
		memory.CreatedAt, memory.UpdatedAt, metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Update implements storage.DocumentStore.
func (c *Client) Update(ctx context.Context, memory *storage.Memory) error {
	if memory.UserID == "" {
		return storage.ErrMissingUserID
	}
	keywords, metadata, err := encodeJSON(memory)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	var embedding interface{}
	if len(memory.Embedding) > 0 {
		embedding = vectorLiteral(memory.Embedding)
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE memories SET memory_type = $1, content = $2, keywords = $3, embedding = $4,
			confidence = $5, importance = $6, metadata = $7, updated_at = NOW()
		WHERE user_id = $8 AND id = $9`,
		string(memory.Type), memory.Content, keywords, embedding,
		memory.Confidence, memory.Importance, metadata, memory.UserID, memory.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: memory %s: %w", memory.ID, storage.ErrNotFound)
	}
	return nil
}

// Delete implements storage.DocumentStore.
func (c *Client) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: memory %s: %w", id, storage.ErrNotFound)
	}
	_, err = c.db.ExecContext(ctx,
		`DELETE FROM memory_entities WHERE user_id = $1 AND memory_id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// IncrementAccess implements storage.DocumentStore.
func (c *Client) IncrementAccess(ctx context.Context, userID string, ids []string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := []interface{}{userID}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE user_id = $1 AND id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return fmt.Errorf("IncrementAccess: %w", err)
	}
	return nil
}

// Traverse implements storage.EntityGraph with an iterative
// breadth-first walk over entity_relations.
func (c *Client) Traverse(ctx context.Context, opts *storage.TraverseOptions) ([]*storage.GraphResult, error) {
	if err := storage.ValidateTraverseOptions(opts); err != nil {
		return nil, err
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}

	frontier := make(map[string]struct{})
	for _, name := range opts.EntityNames {
		id, err := c.lookupEntity(ctx, opts.UserID, name)
		if err != nil {
			return nil, err
		}
		if id != "" {
			frontier[id] = struct{}{}
		}
	}

	visited := make(map[string]int)
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := make(map[string]struct{})
		for id := range frontier {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = depth

			neighbors, err := c.neighborEntities(ctx, opts.UserID, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n]; !seen {
					next[n] = struct{}{}
				}
			}
		}
		frontier = next
	}

	seenMemories := make(map[string]struct{})
	var results []*storage.GraphResult
	for entityID, depth := range visited {
		memories, err := c.memoriesForEntity(ctx, opts.UserID, entityID)
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			if _, dup := seenMemories[m.ID]; dup {
				continue
			}
			seenMemories[m.ID] = struct{}{}
			results = append(results, &storage.GraphResult{Memory: m, Depth: depth})
		}
	}

	sortGraphResults(results)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// LinkEntity implements storage.EntityGraph.
func (c *Client) LinkEntity(ctx context.Context, userID, memoryID, entityName string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	entityID, err := c.ensureEntity(ctx, userID, entityName)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memory_entities (memory_id, entity_id, user_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, memoryID, entityID, userID)
	if err != nil {
		return fmt.Errorf("LinkEntity: %w", err)
	}
	return nil
}

// Relate implements storage.EntityGraph.
func (c *Client) Relate(ctx context.Context, userID, sourceEntity, targetEntity, relation string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	sourceID, err := c.ensureEntity(ctx, userID, sourceEntity)
	if err != nil {
		return err
	}
	targetID, err := c.ensureEntity(ctx, userID, targetEntity)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO entity_relations (id, user_id, source_entity_id, target_entity_id, relation)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		c.node.Generate().String(), userID, sourceID, targetID, relation)
	if err != nil {
		return fmt.Errorf("Relate: %w", err)
	}
	return nil
}

// Close implements storage.Store.
func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) lookupEntity(ctx context.Context, userID, name string) (string, error) {
	var id string
	err := c.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE user_id = $1 AND name = $2`,
		userID, normalizeEntity(name)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookupEntity: %w", err)
	}
	return id, nil
}

func (c *Client) ensureEntity(ctx context.Context, userID, name string) (string, error) {
	normalized := normalizeEntity(name)
	if normalized == "" {
		return "", fmt.Errorf("ensureEntity: entity name is empty")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO entities (id, user_id, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		c.node.Generate().String(), userID, normalized)
	if err != nil {
		return "", fmt.Errorf("ensureEntity: %w", err)
	}
	return c.lookupEntity(ctx, userID, normalized)
}

func (c *Client) neighborEntities(ctx context.Context, userID, entityID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source_entity_id, target_entity_id FROM entity_relations
		WHERE user_id = $1 AND (source_entity_id = $2 OR target_entity_id = $2)`,
		userID, entityID)
	if err != nil {
		return nil, fmt.Errorf("neighborEntities: %w", err)
	}
	defer rows.Close()

	var neighbors []string
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("neighborEntities: %w", err)
		}
		if src == entityID {
			neighbors = append(neighbors, dst)
		} else {
			neighbors = append(neighbors, src)
		}
	}
	return neighbors, rows.Err()
}

func (c *Client) memoriesForEntity(ctx context.Context, userID, entityID string) ([]*storage.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+prefixedMemoryColumns+` FROM memories m
		JOIN memory_entities me ON me.memory_id = m.id
		WHERE me.user_id = $1 AND me.entity_id = $2 AND m.user_id = $1`,
		userID, entityID)
	if err != nil {
		return nil, fmt.Errorf("memoriesForEntity: %w", err)
	}
	defer rows.Close()

	var results []*storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("memoriesForEntity: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
