package llm

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is a generation backend: instruction in, free-form text out.
type Completer interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// OpenAIClient wraps an OpenAI-compatible API client (OpenAI, Groq, Ollama, vLLM).
type OpenAIClient struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI creates a new OpenAI-compatible client.
func NewOpenAI(cfg OpenAIConfig) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

// Complete sends the instruction as a single user message and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, instruction string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &UpstreamError{Op: "openai chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Op: "openai chat completion", Err: fmt.Errorf("no choices in response")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return raw, nil
}

// Ping checks that the endpoint is reachable by listing its models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return &UpstreamError{Op: "openai list models", Err: err}
	}
	return nil
}

// ModelID returns the configured model name.
func (c *OpenAIClient) ModelID() string {
	return c.model
}

// OpenAIEmbedder computes embeddings through an OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	api   *openai.Client
	model string
}

// NewOpenAIEmbedder creates an embedder for the given endpoint and model.
func NewOpenAIEmbedder(cfg EmbedConfig) *OpenAIEmbedder {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
	}
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, &UpstreamError{Op: "openai embeddings", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &UpstreamError{
			Op:  "openai embeddings",
			Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &UpstreamError{Op: "openai embeddings", Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
