// Package storage defines the memory data model and the collaborator
// interfaces consumed by the retrieval pipeline.
//
// It declares the VectorIndex, DocumentStore, and EntityGraph interfaces
// that storage implementations must satisfy, along with search and fetch
// option types. Every search-like operation carries a mandatory UserID
// filter that implementations must apply before scoring or traversal:
// multi-tenant isolation is a pre-filter, never a post-filter.
package storage

import (
	"context"
	"errors"
	"time"
)

// MemoryType classifies a memory by its role in the user's context.
type MemoryType string

const (
	// TypeProfile holds durable user preferences and attributes.
	TypeProfile MemoryType = "profile"

	// TypeSemantic holds factual knowledge extracted from conversations.
	TypeSemantic MemoryType = "semantic"

	// TypeEpisodic holds records of specific events and interactions.
	TypeEpisodic MemoryType = "episodic"

	// TypeProcedural holds learned patterns and procedures.
	TypeProcedural MemoryType = "procedural"
)

// AllTypes lists the declared memory types in categorization order.
var AllTypes = []MemoryType{TypeProfile, TypeSemantic, TypeEpisodic, TypeProcedural}

// ErrMissingUserID is returned by stores when a search, fetch, or
// traverse operation arrives without a user filter. A missing filter is
// an isolation bug in the caller, not a condition to recover from.
var ErrMissingUserID = errors.New("storage: user id filter is required")

// ErrNotFound is returned by Get, Update, and Delete when no memory
// with the given ID exists for the user.
var ErrNotFound = errors.New("storage: memory not found")

// Memory represents a single stored memory.
//
// The retrieval pipeline only reads memories; writes (Insert, Update,
// IncrementAccess) exist so callers can operate and seed the store.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID string

	// UserID identifies the user who owns this memory.
	UserID string

	// Type is the memory category (profile, semantic, episodic, procedural).
	Type MemoryType

	// Content is the text content of the memory.
	Content string

	// Keywords are terms extracted from the content at write time.
	Keywords []string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Confidence is how reliable this memory is considered (0.0-1.0).
	Confidence float64

	// Importance is the assessed importance of the memory (0.0-1.0).
	Importance float64

	// AccessCount is how many times the memory has been retrieved.
	AccessCount int

	// LastAccessedAt is when the memory was last accessed (nil if never).
	LastAccessedAt *time.Time

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time

	// Metadata carries additional structured information.
	Metadata map[string]interface{}

	// Score is the raw similarity score populated by search operations.
	Score float64
}

// VectorSearchOptions contains options for vector similarity search.
type VectorSearchOptions struct {
	// UserID restricts the search to one user's memories. Required;
	// implementations must apply it before scoring (pre-filter).
	UserID string

	// Types optionally restricts results to the given memory types.
	Types []MemoryType

	// TopK is the maximum number of results to return.
	TopK int

	// MinScore drops results scoring below this cosine similarity.
	MinScore float64
}

// FetchOrder selects the ordering of a DocumentStore fetch.
type FetchOrder string

const (
	// OrderByConfidence returns highest-confidence memories first.
	OrderByConfidence FetchOrder = "confidence"

	// OrderByCreatedAt returns newest memories first.
	OrderByCreatedAt FetchOrder = "created_at"
)

// FetchOptions contains options for DocumentStore fetches.
type FetchOptions struct {
	// UserID restricts the fetch to one user's memories. Required.
	UserID string

	// Types optionally restricts results to the given memory types.
	Types []MemoryType

	// OrderBy selects the result ordering (default OrderByCreatedAt).
	OrderBy FetchOrder

	// Limit caps the number of returned memories.
	Limit int
}

// TraverseOptions contains options for entity graph traversal.
type TraverseOptions struct {
	// UserID restricts the traversal to one user's graph. Required.
	UserID string

	// EntityNames are the entity mentions to resolve into graph nodes.
	EntityNames []string

	// MaxDepth bounds the relationship traversal (hops from a resolved node).
	MaxDepth int

	// Limit caps the number of returned memories.
	Limit int
}

// GraphResult pairs a memory reached through the entity graph with the
// hop depth at which it was found (1 = linked to a directly resolved
// entity).
type GraphResult struct {
	Memory *Memory
	Depth  int
}

// VectorIndex is the similarity-search collaborator.
//
// Implementations must apply opts.UserID (and opts.Types when set)
// server-side before scoring.
type VectorIndex interface {
	// Search returns the memories most similar to the query embedding,
	// highest score first, with Memory.Score set to cosine similarity.
	Search(ctx context.Context, embedding []float64, opts *VectorSearchOptions) ([]*Memory, error)

	// Insert adds a memory (with its embedding) to the index.
	Insert(ctx context.Context, memory *Memory) error

	// Close releases index resources.
	Close() error
}

// DocumentStore is the row-fetch collaborator used by the keyword,
// profile, and recency strategies.
type DocumentStore interface {
	// Fetch returns memories matching the options, pre-filtered by user.
	Fetch(ctx context.Context, opts *FetchOptions) ([]*Memory, error)

	// Get retrieves a single memory by ID, scoped to the user.
	Get(ctx context.Context, userID, id string) (*Memory, error)

	// Insert adds a memory to the store.
	Insert(ctx context.Context, memory *Memory) error

	// Update replaces a memory's content, keywords, and embedding.
	Update(ctx context.Context, memory *Memory) error

	// Delete removes a memory by ID, scoped to the user.
	Delete(ctx context.Context, userID, id string) error

	// IncrementAccess bumps the access count and last-accessed timestamp.
	// The retrieval pipeline never calls this itself; it is the side
	// effect a caller may apply after consuming a built context.
	IncrementAccess(ctx context.Context, userID string, ids []string) error

	// Close releases store resources.
	Close() error
}

// EntityGraph is the relationship-traversal collaborator used by the
// graph strategy.
type EntityGraph interface {
	// Traverse resolves entity names to nodes owned by the user, walks
	// relationships up to MaxDepth, and returns the memories linked to
	// the reached entities together with their hop depth.
	Traverse(ctx context.Context, opts *TraverseOptions) ([]*GraphResult, error)

	// LinkEntity attaches a memory to a named entity, creating the
	// entity node if needed. Used when seeding the graph.
	LinkEntity(ctx context.Context, userID, memoryID, entityName string) error

	// Relate records a relationship between two named entities.
	Relate(ctx context.Context, userID, sourceEntity, targetEntity, relation string) error

	// Close releases graph resources.
	Close() error
}

// Store combines the three collaborator interfaces. Full backends
// (sqlite, postgres, oceanbase, inmem) implement all of them over one
// connection.
type Store interface {
	VectorIndex
	DocumentStore
	EntityGraph
}

// ValidateVectorSearchOptions rejects searches without a user filter.
func ValidateVectorSearchOptions(opts *VectorSearchOptions) error {
	if opts == nil || opts.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// ValidateFetchOptions rejects fetches without a user filter.
func ValidateFetchOptions(opts *FetchOptions) error {
	if opts == nil || opts.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// ValidateTraverseOptions rejects traversals without a user filter.
func ValidateTraverseOptions(opts *TraverseOptions) error {
	if opts == nil || opts.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}
