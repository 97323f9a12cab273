// Package sqlite provides a SQLite implementation of storage.Store.
//
// SQLite is a lightweight, file-based database suitable for local
// development and small deployments. Embedding vectors are stored as
// JSON strings in TEXT columns and similarity search uses in-memory
// cosine calculation after a user-filtered fetch.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/gonum/floats"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	db   *sql.DB
	node *snowflake.Node
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// NodeID distinguishes ID generators across processes (0-1023).
	NodeID int64
}

// NewClient creates a SQLite store, creating the database file and
// schema when missing.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db, node: node}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// initTables initializes the database schema.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			keywords TEXT,
			embedding TEXT,
			confidence REAL DEFAULT 0.5,
			importance REAL DEFAULT 0.5,
			access_count INTEGER DEFAULT 0,
			last_accessed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			UNIQUE(user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_relations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			source_entity_id TEXT NOT NULL,
			target_entity_id TEXT NOT NULL,
			relation TEXT,
			UNIQUE(user_id, source_entity_id, target_entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entities (
			memory_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
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

// Search implements storage.VectorIndex. The candidate set is
// pre-filtered by user (and type) in SQL; cosine scoring happens in Go
// because SQLite has no native vector type.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.VectorSearchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateVectorSearchOptions(opts); err != nil {
		return nil, err
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? AND embedding IS NOT NULL`
	args := []interface{}{opts.UserID}
	query, args = appendTypeFilter(query, args, opts.Types)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer rows.Close()

	var results []*storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if len(m.Embedding) != len(embedding) {
			continue
		}
		score := cosine(embedding, m.Embedding)
		if score < opts.MinScore {
			continue
		}
		m.Score = score
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
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
		query += ` ORDER BY confidence DESC, id ASC`
	default:
		query += ` ORDER BY created_at DESC, id ASC`
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return results, nil
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

	keywords, embedding, metadata, err := encodeFields(memory)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
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
	keywords, embedding, metadata, err := encodeFields(memory)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
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
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memories SET access_count = access_count + 1,
			last_accessed_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id IN (%s)`, placeholders), args...)
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

	// Resolve mentions to entity IDs.
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
		INSERT OR IGNORE INTO memory_entities (memory_id, entity_id, user_id)
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
		INSERT OR IGNORE INTO entity_relations (id, user_id, source_entity_id, target_entity_id, relation)
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
	id, err := c.lookupEntity(ctx, userID, normalized)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = c.node.Generate().String()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (id, user_id, name) VALUES (?, ?, ?)`,
		id, userID, normalized)
	if err != nil {
		return "", fmt.Errorf("ensureEntity: %w", err)
	}
	// Another writer may have won the race; read back the winner.
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

func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// cosine computes cosine similarity, zero when either vector has zero
// magnitude.
func cosine(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

const memoryColumns = `id, user_id, memory_type, content, keywords, embedding,
	confidence, importance, access_count, last_accessed_at, created_at, updated_at, metadata`

const prefixedMemoryColumns = `m.id, m.user_id, m.memory_type, m.content, m.keywords, m.embedding,
	m.confidence, m.importance, m.access_count, m.last_accessed_at, m.created_at, m.updated_at, m.metadata`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*storage.Memory, error) {
	var m storage.Memory
	var memoryType string
	var keywords, embedding, metadata sql.NullString
	var lastAccessed sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &memoryType, &m.Content, &keywords, &embedding,
		&m.Confidence, &m.Importance, &m.AccessCount, &lastAccessed,
		&m.CreatedAt, &m.UpdatedAt, &metadata)
	if err != nil {
		return nil, err
	}
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
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &m.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &m, nil
}

func encodeFields(memory *storage.Memory) (keywords, embedding, metadata interface{}, err error) {
	if len(memory.Keywords) > 0 {
		b, err := json.Marshal(memory.Keywords)
		if err != nil {
			return nil, nil, nil, err
		}
		keywords = string(b)
	}
	if len(memory.Embedding) > 0 {
		b, err := json.Marshal(memory.Embedding)
		if err != nil {
			return nil, nil, nil, err
		}
		embedding = string(b)
	}
	if len(memory.Metadata) > 0 {
		b, err := json.Marshal(memory.Metadata)
		if err != nil {
			return nil, nil, nil, err
		}
		metadata = string(b)
	}
	return keywords, embedding, metadata, nil
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
