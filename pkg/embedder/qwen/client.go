// Package qwen provides a Qwen (DashScope) implementation of
// embedder.Provider using the OpenAI-compatible endpoint.
package qwen

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// Client generates embeddings through the DashScope embeddings API.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config holds the settings needed to construct a Client.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to text-embedding-v3.
	Model string
	// BaseURL overrides the DashScope compatible-mode endpoint.
	BaseURL string
	// Dimensions is the embedding vector size, defaulting to 1024.
	Dimensions int
}

// NewClient creates a Qwen embedding client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("qwen embedder: api key is required")
	}

	model := openai.EmbeddingModel("text-embedding-v3")
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1024
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL

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

// EmbedBatch generates embedding vectors for multiple texts.
//
// DashScope limits embedding batches to 10 inputs per request, so larger
// batches are split transparently.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 10
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
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
