// Package openai provides an OpenAI implementation of embedder.Provider
// built on the official-compatible go-openai client.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Client generates embeddings through the OpenAI embeddings API.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config holds the settings needed to construct a Client.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to text-embedding-3-small.
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
	// Dimensions is the embedding vector size, defaulting to 1536.
	Dimensions int
}

// NewClient creates an OpenAI embedding client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}

	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: got %d results for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float64, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return nil
}
