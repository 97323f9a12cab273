// Package openai provides an OpenAI implementation of llm.Provider. It
// also works against any OpenAI-compatible endpoint (DashScope, Ollama,
// vLLM) via the BaseURL setting.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/jyntrix/memctx-go/pkg/llm"
)

// Client talks to the OpenAI chat completions API.
type Client struct {
	client *openai.Client
	model  string
}

// Config holds the settings needed to construct a Client.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// NewClient creates an OpenAI chat client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai llm: api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Generate produces a completion for the given messages.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion failed: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return nil
}
