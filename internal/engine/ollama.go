package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/talkmatch/internal/ollama"
)

// OllamaEngine completes conversations with a model served by a local
// Ollama instance and can make sure that model is present.
type OllamaEngine struct {
	client    *ollama.Client
	model     string
	maxTokens int
}

// NewOllamaEngine returns an engine for model on the server at baseURL.
// maxTokens caps each reply; zero leaves the server default.
func NewOllamaEngine(baseURL, model string, maxTokens int) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), model: model, maxTokens: maxTokens}
}

// Model returns the model name used for completions.
func (e *OllamaEngine) Model() string { return e.model }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message    Message `json:"message"`
	DoneReason string  `json:"done_reason,omitempty"`
}

// Complete sends the conversation to /api/chat. A blank answer is a valid
// reply and comes back as "".
func (e *OllamaEngine) Complete(ctx context.Context, messages []Message) (string, error) {
	req := ollamaChatRequest{Model: e.model, Messages: messages}
	if e.maxTokens > 0 {
		req.Options = &ollamaOptions{NumPredict: e.maxTokens}
	}

	var resp ollamaChatResponse
	if err := e.client.PostJSON(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat with %s: %w", e.model, err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", nil
	}
	return resp.Message.Content, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.Reachable(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	inv, err := e.client.Inventory(ctx)
	if err != nil {
		return false
	}
	return inv.Has(name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return e.client.Pull(ctx, name, func(p ollama.Progress) {
		if onProgress != nil {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	})
}
