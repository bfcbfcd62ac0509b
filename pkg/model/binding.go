package model

import (
	"context"
	"errors"
	"fmt"
)

// Binding is a handle to a language model used for reasoning fallback. The
// orchestration core never depends on a concrete provider.
type Binding interface {
	// Name identifies the bound model for logs and answers
	Name() string

	// Complete sends a single-turn prompt and returns the model's text reply
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config selects and parameterizes a provider
type Config struct {
	Provider    string  `json:"provider" mapstructure:"provider"`
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// DefaultConfig returns default model configuration
func DefaultConfig() Config {
	return Config{
		Provider:  "anthropic",
		MaxTokens: 1024,
	}
}

// ErrUnknownProvider is returned for a provider name with no implementation
var ErrUnknownProvider = errors.New("unknown model provider")

// New creates a binding for the configured provider
func New(cfg Config) (Binding, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}

	switch cfg.Provider {
	case "anthropic":
		return newAnthropicBinding(cfg), nil
	case "openai":
		return newOpenAIBinding(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
