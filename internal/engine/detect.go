package engine

import (
	"context"
	"fmt"
)

// Providers accepted by New.
const (
	ProviderOpenRouter = "openrouter"
	ProviderCompat     = "openai"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
	ProviderMock       = "mock"
)

// Options selects and configures a completion backend.
type Options struct {
	Provider  string
	Model     string
	MaxTokens int

	OpenRouterAPIKey string
	CompatBaseURL    string
	CompatAPIKey     string
	OllamaBaseURL    string
	OllamaModel      string
	GeminiAPIKey     string
	GeminiModel      string
}

// New builds the Engine named by opts.Provider.
func New(ctx context.Context, opts Options) (Engine, error) {
	switch opts.Provider {
	case ProviderOpenRouter, "":
		if opts.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key")
		}
		return NewOpenRouterEngine(opts.OpenRouterAPIKey, opts.Model, opts.MaxTokens), nil
	case ProviderCompat:
		if opts.CompatBaseURL == "" {
			return nil, fmt.Errorf("openai provider requires a base URL")
		}
		return NewCompatEngine(opts.CompatBaseURL, opts.CompatAPIKey, opts.Model, opts.MaxTokens), nil
	case ProviderOllama:
		return NewOllamaEngine(opts.OllamaBaseURL, opts.OllamaModel, opts.MaxTokens), nil
	case ProviderGemini:
		return NewGeminiEngine(ctx, opts.GeminiAPIKey, opts.GeminiModel, opts.MaxTokens)
	case ProviderMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", opts.Provider)
	}
}
