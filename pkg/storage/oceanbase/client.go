// Package oceanbase provides an OceanBase implementation of
// storage.Store using the MySQL protocol. Similarity search runs
// server-side with OceanBase's cosine_distance function over a native
// VECTOR column, pre-filtered by user.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Client implements storage.Store using OceanBase as the backend.
type Client struct {
	db         *sql.DB
	dimensions int
	node       *snowflake.Node
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
	NodeID             int64
}

// NewClient creates an OceanBase store, creating the schema when
// missing.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{db: db, dimensions: cfg.EmbeddingModelDims, node: node}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// initTables initializes the database schema.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			keywords JSON,
			embedding VECTOR(%d),
			confidence DOUBLE DEFAULT 0.5,
			importance DOUBLE DEFAULT 0.5,
			access_count INT DEFAULT 0,
			last_accessed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			metadata JSON,
			INDEX idx_memories_user_type (user_id, memory_type)
		)`, c.dimensions),
		`CREATE TABLE IF NOT EXISTS entities (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(512) NOT NULL,
			UNIQUE KEY uk_entities_user_name (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_relations (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			source_entity_id BIGINT NOT NULL,
			target_entity_id BIGINT NOT NULL,
			relation VARCHAR(255),
			UNIQUE KEY uk_relations (user_id, source_entity_id, target_entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entities (
			memory_id BIGINT NOT NULL,
			entity_id BIGINT NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (memory_id, entity_id),
			INDEX idx_memory_entities_entity (user_id, entity_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// Search implements storage.VectorIndex using OceanBase's
// cosine_distance, converted to similarity as 1 - distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.VectorSearchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateVectorSearchOptions(opts); err != nil {
		return nil, err
	}

	query := `SELECT ` + memoryColumns + `, cosine_distance(embedding, ?) AS distance
		FROM memories WHERE user_id = ? AND embedding IS NOT NULL`
	args := []interface{}{vectorLiteral(embedding), opts.UserID}
	query, args = appendTypeFilter(query, args, opts.Types)

	query += " ORDER BY distance ASC"
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
		m, distance, err := scanMemoryWithDistance(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		score := 1 - distance
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

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ?`
	args := []interface{}{opts.UserID}
	query, args = appendTypeFilter(query, args, opts.Types)

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
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND id = ?`, userID, id)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		UPDATE memories SET memory_type = ?, content = ?, keywords = ?, embedding = ?,
			confidence = ?, importance = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?`,
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
		`DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: memory %s: %w", id, storage.ErrNotFound)
	}
	_, err = c.db.ExecContext(ctx,
		`DELETE FROM memory_entities WHERE user_id = ? AND memory_id = ?`, userID, id)
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
	placeholders := strings.Repeat("?,", len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memories SET access_count = access_count + 1,
			last_accessed_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id IN (%s)`, placeholders[:len(placeholders)-1]), args...)
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

	sort.Slice(results, func(i, j int) bool {
		if results[i].Depth != results[j].Depth {
			return results[i].Depth < results[j].Depth
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
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
		INSERT IGNORE INTO memory_entities (memory_id, entity_id, user_id)
		VALUES (?, ?, ?)`, memoryID, entityID, userID)
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
		INSERT IGNORE INTO entity_relations (id, user_id, source_entity_id, target_entity_id, relation)
		VALUES (?, ?, ?, ?, ?)`,
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
		`SELECT id FROM entities WHERE user_id = ? AND name = ?`,
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
		`INSERT IGNORE INTO entities (id, user_id, name) VALUES (?, ?, ?)`,
		c.node.Generate().String(), userID, normalized)
	if err != nil {
		return "", fmt.Errorf("ensureEntity: %w", err)
	}
	return c.lookupEntity(ctx, userID, normalized)
}

func (c *Client) neighborEntities(ctx context.Context, userID, entityID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source_entity_id, target_entity_id FROM entity_relations
		WHERE user_id = ? AND (source_entity_id = ? OR target_entity_id = ?)`,
		userID, entityID, entityID)
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
		WHERE me.user_id = ? AND me.entity_id = ? AND m.user_id = ?`,
		userID, entityID, userID)
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

const memoryColumns = `id, user_id, memory_type, content, keywords,
	confidence, importance, access_count, last_accessed_at, created_at, updated_at, metadata`

const prefixedMemoryColumns = `m.id, m.user_id, m.memory_type, m.content, m.keywords,
	m.confidence, m.importance, m.access_count, m.last_accessed_at, m.created_at, m.updated_at, m.metadata`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*storage.Memory, error) {
	var m storage.Memory
	var memoryType string
	var keywords, metadata sql.NullString
	var lastAccessed sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &memoryType, &m.Content, &keywords,
		&m.Confidence, &m.Importance, &m.AccessCount, &lastAccessed,
		&m.CreatedAt, &m.UpdatedAt, &metadata)
	if err != nil {
		return nil, err
	}
	return decodeMemory(&m, memoryType, keywords, metadata, lastAccessed)
}

func scanMemoryWithDistance(row rowScanner) (*storage.Memory, float64, error) {
	var m storage.Memory
	var memoryType string
	var keywords, metadata sql.NullString
	var lastAccessed sql.NullTime
	var distance float64

	err := row.Scan(&m.ID, &m.UserID, &memoryType, &m.Content, &keywords,
		&m.Confidence, &m.Importance, &m.AccessCount, &lastAccessed,
		&m.CreatedAt, &m.UpdatedAt, &metadata, &distance)
	if err != nil {
		return nil, 0, err
	}
	decoded, err := decodeMemory(&m, memoryType, keywords, metadata, lastAccessed)
	return decoded, distance, err
}

func decodeMemory(m *storage.Memory, memoryType string, keywords, metadata sql.NullString, lastAccessed sql.NullTime) (*storage.Memory, error) {
	m.Type = storage.MemoryType(memoryType)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		m.LastAccessedAt = &t
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &m.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return m, nil
}

func encodeJSON(memory *storage.Memory) (keywords, metadata interface{}, err error) {
	if len(memory.Keywords) > 0 {
		b, err := json.Marshal(memory.Keywords)
		if err != nil {
			return nil, nil, err
		}
		keywords = string(b)
	}
	if len(memory.Metadata) > 0 {
		b, err := json.Marshal(memory.Metadata)
		if err != nil {
			return nil, nil, err
		}
		metadata = string(b)
	}
	return keywords, metadata, nil
}

// vectorLiteral renders an OceanBase vector literal like [0.1,0.2].
func vectorLiteral(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func appendTypeFilter(query string, args []interface{}, types []storage.MemoryType) (string, []interface{}) {
	if len(types) == 0 {
		return query, args
	}
	placeholders := strings.Repeat("?,", len(types))
	query += fmt.Sprintf(" AND memory_type IN (%s)", placeholders[:len(placeholders)-1])
	for _, t := range types {
		args = append(args, string(t))
	}
	return query, args
}
