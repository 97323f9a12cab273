// Package embedder provides interfaces for text embedding providers and
// a bounded concurrent cache for query embeddings.
//
// It defines the Provider interface that embedding implementations must
// satisfy, enabling text-to-vector conversion for similarity search.
package embedder

import "context"

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, Qwen, etc.) must implement this
// interface.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//
	// Returns the embedding vector and any error.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// More efficient than calling Embed repeatedly when the provider
	// supports batch requests.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of vectors produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
