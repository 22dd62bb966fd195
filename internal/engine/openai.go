package engine

import (
	"context"

	"github.com/kalambet/talkmatch/internal/proxy"
)

// CompatEngine talks to OpenRouter or any OpenAI-compatible chat server
// (mlx-lm, llama.cpp, vLLM) through the proxy client.
type CompatEngine struct {
	client    *proxy.Client
	model     string
	maxTokens int
}

// NewOpenRouterEngine creates an engine for the hosted OpenRouter API.
func NewOpenRouterEngine(apiKey, model string, maxTokens int) *CompatEngine {
	return &CompatEngine{client: proxy.NewClient(apiKey), model: model, maxTokens: maxTokens}
}

// NewCompatEngine creates an engine for an OpenAI-compatible server at
// baseURL. apiKey may be empty for local servers.
func NewCompatEngine(baseURL, apiKey, model string, maxTokens int) *CompatEngine {
	return &CompatEngine{client: proxy.NewClientWithBaseURL(apiKey, baseURL), model: model, maxTokens: maxTokens}
}

func (e *CompatEngine) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]proxy.Message, len(messages))
	for i, m := range messages {
		msgs[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Complete(ctx, e.model, msgs, e.maxTokens)
}

// Ping verifies the server is reachable and the credentials are accepted.
func (e *CompatEngine) Ping(ctx context.Context) error {
	_, err := e.client.ListModels(ctx)
	return err
}
