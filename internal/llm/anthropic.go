package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Completer using the Anthropic SDK.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a new Anthropic client.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicClient{
		client:    &client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, instruction string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(instruction)),
		},
	})
	if err != nil {
		return "", &UpstreamError{Op: "anthropic messages", Err: err}
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			slog.Debug("LLM response", "model", c.model, "raw", block.Text)
			return block.Text, nil
		}
	}
	return "", &UpstreamError{Op: "anthropic messages", Err: fmt.Errorf("no text content in response")}
}

func (c *AnthropicClient) ModelID() string {
	return c.model
}
