// Package inmem provides an in-memory storage.Store for tests and
// small deployments. All data lives in process memory guarded by a
// read-write mutex; vector search is a linear scan with cosine
// similarity.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Store implements storage.Store entirely in memory.
type Store struct {
	mu sync.RWMutex

	// memories maps memory ID to record.
	memories map[string]*storage.Memory

	// entities maps userID -> lowercase entity name -> linked memory IDs.
	entities map[string]map[string][]string

	// relations maps userID -> lowercase entity name -> neighbor names.
	relations map[string]map[string][]string

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		memories:  make(map[string]*storage.Memory),
		entities:  make(map[string]map[string][]string),
		relations: make(map[string]map[string][]string),
		now:       time.Now,
	}
}

// Search implements storage.VectorIndex with a user-filtered linear
// scan and cosine scoring.
func (s *Store) Search(ctx context.Context, embedding []float64, opts *storage.VectorSearchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateVectorSearchOptions(opts); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*storage.Memory
	for _, m := range s.memories {
		if m.UserID != opts.UserID {
			continue
		}
		if !typeAllowed(m.Type, opts.Types) {
			continue
		}
		if len(m.Embedding) == 0 || len(m.Embedding) != len(embedding) {
			continue
		}
		score := cosine(embedding, m.Embedding)
		if score < opts.MinScore {
			continue
		}
		copied := *m
		copied.Score = score
		results = append(results, &copied)
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
func (s *Store) Fetch(ctx context.Context, opts *storage.FetchOptions) ([]*storage.Memory, error) {
	if err := storage.ValidateFetchOptions(opts); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*storage.Memory
	for _, m := range s.memories {
		if m.UserID != opts.UserID {
			continue
		}
		if !typeAllowed(m.Type, opts.Types) {
			continue
		}
		copied := *m
		results = append(results, &copied)
	}

	switch opts.OrderBy {
	case storage.OrderByConfidence:
		sort.Slice(results, func(i, j int) bool {
			if results[i].Confidence != results[j].Confidence {
				return results[i].Confidence > results[j].Confidence
			}
			return results[i].ID < results[j].ID
		})
	default:
		sort.Slice(results, func(i, j int) bool {
			if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
				return results[i].CreatedAt.After(results[j].CreatedAt)
			}
			return results[i].ID < results[j].ID
		})
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Get implements storage.DocumentStore.
func (s *Store) Get(ctx context.Context, userID, id string) (*storage.Memory, error) {
	if userID == "" {
		return nil, storage.ErrMissingUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[id]
	if !ok || m.UserID != userID {
		return nil, fmt.Errorf("memory %s: %w", id, storage.ErrNotFound)
	}
	copied := *m
	return &copied, nil
}

// Insert implements storage.DocumentStore and storage.VectorIndex.
func (s *Store) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.UserID == "" {
		return storage.ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = s.now()
	}
	memory.UpdatedAt = s.now()
	copied := *memory
	s.memories[memory.ID] = &copied
	return nil
}

// Update implements storage.DocumentStore.
func (s *Store) Update(ctx context.Context, memory *storage.Memory) error {
	if memory.UserID == "" {
		return storage.ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[memory.ID]
	if !ok || existing.UserID != memory.UserID {
		return fmt.Errorf("memory %s: %w", memory.ID, storage.ErrNotFound)
	}
	memory.CreatedAt = existing.CreatedAt
	memory.UpdatedAt = s.now()
	copied := *memory
	s.memories[memory.ID] = &copied
	return nil
}

// Delete implements storage.DocumentStore.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.UserID != userID {
		return fmt.Errorf("memory %s: %w", id, storage.ErrNotFound)
	}
	delete(s.memories, id)
	return nil
}

// IncrementAccess implements storage.DocumentStore.
func (s *Store) IncrementAccess(ctx context.Context, userID string, ids []string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range ids {
		if m, ok := s.memories[id]; ok && m.UserID == userID {
			m.AccessCount++
			m.LastAccessedAt = &now
		}
	}
	return nil
}

// Traverse implements storage.EntityGraph with breadth-first
// traversal over the user's entity relations.
func (s *Store) Traverse(ctx context.Context, opts *storage.TraverseOptions) ([]*storage.GraphResult, error) {
	if err := storage.ValidateTraverseOptions(opts); err != nil {
		return nil, err
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userEntities := s.entities[opts.UserID]
	userRelations := s.relations[opts.UserID]
	if userEntities == nil {
		return nil, nil
	}

	// Resolve mentions to known entities, then BFS outward.
	type node struct {
		name  string
		depth int
	}
	var frontier []node
	visited := make(map[string]struct{})
	for _, name := range opts.EntityNames {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := userEntities[key]; ok {
			if _, seen := visited[key]; !seen {
				visited[key] = struct{}{}
				frontier = append(frontier, node{name: key, depth: 1})
			}
		}
	}

	seenMemories := make(map[string]struct{})
	var results []*storage.GraphResult
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, memoryID := range userEntities[current.name] {
			if _, dup := seenMemories[memoryID]; dup {
				continue
			}
			m, ok := s.memories[memoryID]
			if !ok || m.UserID != opts.UserID {
				continue
			}
			seenMemories[memoryID] = struct{}{}
			copied := *m
			results = append(results, &storage.GraphResult{Memory: &copied, Depth: current.depth})
		}

		if current.depth >= maxDepth {
			continue
		}
		for _, neighbor := range userRelations[current.name] {
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			frontier = append(frontier, node{name: neighbor, depth: current.depth + 1})
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
func (s *Store) LinkEntity(ctx context.Context, userID, memoryID, entityName string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	key := strings.ToLower(strings.TrimSpace(entityName))
	if key == "" {
		return fmt.Errorf("entity name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entities[userID] == nil {
		s.entities[userID] = make(map[string][]string)
	}
	s.entities[userID][key] = append(s.entities[userID][key], memoryID)
	return nil
}

// Relate implements storage.EntityGraph. Relations are undirected.
func (s *Store) Relate(ctx context.Context, userID, sourceEntity, targetEntity, relation string) error {
	if userID == "" {
		return storage.ErrMissingUserID
	}
	src := strings.ToLower(strings.TrimSpace(sourceEntity))
	dst := strings.ToLower(strings.TrimSpace(targetEntity))
	if src == "" || dst == "" {
		return fmt.Errorf("entity name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relations[userID] == nil {
		s.relations[userID] = make(map[string][]string)
	}
	s.relations[userID][src] = append(s.relations[userID][src], dst)
	s.relations[userID][dst] = append(s.relations[userID][dst], src)
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
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
