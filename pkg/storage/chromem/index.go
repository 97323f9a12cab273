// Package chromem provides a chromem-go implementation of
// storage.VectorIndex. Each user gets a dedicated collection, so
// isolation is structural rather than a query-time filter.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Index implements storage.VectorIndex on top of chromem-go.
type Index struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// Config contains chromem configuration.
type Config struct {
	// PersistPath stores collections on disk when set; empty keeps
	// everything in memory.
	PersistPath string

	// Compress gzip-compresses persisted collections.
	Compress bool
}

// NewIndex creates a chromem-backed vector index.
func NewIndex(cfg *Config) (*Index, error) {
	var db *chromem.DB
	var err error
	if cfg != nil && cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("NewChromemIndex: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Index{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

// collection returns the per-user collection, creating it on first use.
// The embedding func is a stub because vectors always arrive
// precomputed.
func (i *Index) collection(userID string) (*chromem.Collection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if c, ok := i.collections[userID]; ok {
		return c, nil
	}
	c, err := i.db.GetOrCreateCollection("memories-"+userID, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("chromem collection: %w", err)
	}
	i.collections[userID] = c
	return c, nil
}

// Search implements storage.VectorIndex.
func (i *Index) Search(ctx context.Context, embedding []float64, opts *storage.VectorSearchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateVectorSearchOptions(opts); err != nil {
		return nil, err
	}
	col, err := i.collection(opts.UserID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// Over-fetch because type filtering happens after the query.
	n := opts.TopK * 4
	if n <= 0 || n > count {
		n = count
	}

	hits, err := col.QueryEmbedding(ctx, toFloat32(embedding), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	var results []*storage.Memory
	for _, hit := range hits {
		m, err := decodeMemory(hit)
		if err != nil {
			return nil, err
		}
		if !typeAllowed(m.Type, opts.Types) {
			continue
		}
		if m.Score < opts.MinScore {
			continue
		}
		results = append(results, m)
		if opts.TopK > 0 && len(results) == opts.TopK {
			break
		}
	}
	return results, nil
}

// Insert implements storage.VectorIndex.
func (i *Index) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.UserID == "" {
		return storage.ErrMissingUserID
	}
	if len(memory.Embedding) == 0 {
		return fmt.Errorf("chromem insert: memory has no embedding")
	}
	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}

	col, err := i.collection(memory.UserID)
	if err != nil {
		return err
	}

	record, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("chromem insert: %w", err)
	}

	return col.AddDocument(ctx, chromem.Document{
		ID:        memory.ID,
		Content:   memory.Content,
		Embedding: toFloat32(memory.Embedding),
		Metadata: map[string]string{
			"type":   string(memory.Type),
			"record": string(record),
		},
	})
}

// Close implements storage.VectorIndex.
func (i *Index) Close() error {
	return nil
}

// noEmbed rejects implicit embedding generation; every document must
// carry a precomputed vector.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: implicit embedding is disabled")
}

func decodeMemory(hit chromem.Result) (*storage.Memory, error) {
	var m storage.Memory
	if raw, ok := hit.Metadata["record"]; ok {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("chromem decode: %w", err)
		}
	} else {
		m.ID = hit.ID
		m.Content = hit.Content
		m.Type = storage.MemoryType(hit.Metadata["type"])
	}
	m.Score = float64(hit.Similarity)
	return &m, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func typeAllowed(t storage.MemoryType, allowed []storage.MemoryType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
