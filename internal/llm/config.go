package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultMaxTokens = 800

// Config holds generation backend configuration.
type Config struct {
	// Provider selects the backend: "openai", "anthropic", "gemini" or "mock".
	Provider string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig

	// Timeout bounds a single backend call. Zero disables it.
	Timeout time.Duration
}

// OpenAIConfig holds configuration for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// EmbedConfig configures the embedding endpoint used for document retrieval.
type EmbedConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAI.Model == "" {
			return fmt.Errorf("llm-model is required for the openai provider")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("llm-key is required for the anthropic provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("llm-key is required for the gemini provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// New creates the configured Completer, wrapped with the per-call timeout and logging.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Completer
	var err error
	switch cfg.Provider {
	case "openai":
		base = NewOpenAI(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropic(cfg.Anthropic)
	case "gemini":
		base, err = NewGemini(ctx, cfg.Gemini)
	case "mock":
		base = NewOfflineCompleter()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithTimeout(WithLogging(base, cfg.Provider), cfg.Timeout), nil
}

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout bounds every call to c by d. A zero d returns c unchanged.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return &timeoutCompleter{inner: c, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, instruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, instruction)
}

type loggingCompleter struct {
	inner    Completer
	provider string
}

// WithLogging records latency and outcome of every call.
func WithLogging(c Completer, provider string) Completer {
	return &loggingCompleter{inner: c, provider: provider}
}

func (l *loggingCompleter) Complete(ctx context.Context, instruction string) (string, error) {
	start := time.Now()
	out, err := l.inner.Complete(ctx, instruction)
	attrs := []any{
		"provider", l.provider,
		"latency_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(instruction),
		"response_chars", len(out),
	}
	if err != nil {
		slog.Warn("LLM call failed", append(attrs, "error", err)...)
		return out, err
	}
	slog.Info("LLM call", attrs...)
	return out, nil
}
