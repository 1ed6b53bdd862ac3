package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiClient implements Completer using the Google Gemini SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGemini creates a new Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		model:     cfg.Model,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, instruction string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: instruction}}},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", &UpstreamError{Op: "gemini generate content", Err: err}
	}

	raw := result.Text()
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return raw, nil
}

func (c *GeminiClient) ModelID() string {
	return c.model
}
