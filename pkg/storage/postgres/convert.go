package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

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

func scanMemoryWithScore(row rowScanner) (*storage.Memory, float64, error) {
	var m storage.Memory
	var memoryType string
	var keywords, metadata sql.NullString
	var lastAccessed sql.NullTime
	var score float64

	err := row.Scan(&m.ID, &m.UserID, &memoryType, &m.Content, &keywords,
		&m.Confidence, &m.Importance, &m.AccessCount, &lastAccessed,
		&m.CreatedAt, &m.UpdatedAt, &metadata, &score)
	if err != nil {
		return nil, 0, err
	}
	decoded, err := decodeMemory(&m, memoryType, keywords, metadata, lastAccessed)
	return decoded, score, err
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

// vectorLiteral renders a pgvector literal like [0.1,0.2,0.3].
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

func sortGraphResults(results []*storage.GraphResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Depth != results[j].Depth {
			return results[i].Depth < results[j].Depth
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}
