// Package llm defines the large language model provider interface used
// for query analysis refinement.
package llm

import "context"

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions controls a generation request.
type GenerateOptions struct {
	// Temperature controls randomness, 0 for deterministic output.
	Temperature float64
	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
	// JSONMode requests a JSON object response when supported.
	JSONMode bool
}

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Generate produces a completion for the given messages.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)

	// Close releases resources held by the provider.
	Close() error
}
