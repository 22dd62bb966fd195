package engine

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiEngine generates completions with Google's Gemini API.
type GeminiEngine struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiEngine creates a Gemini-backed engine.
func NewGeminiEngine(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &GeminiEngine{client: client, model: model, maxTokens: int32(maxTokens)}, nil
}

func (e *GeminiEngine) Complete(ctx context.Context, messages []Message) (string, error) {
	system, contents := toGeminiContents(messages)

	cfg := &genai.GenerateContentConfig{}
	if e.maxTokens > 0 {
		cfg.MaxOutputTokens = e.maxTokens
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

// toGeminiContents folds every system message into one system instruction
// and maps the remaining turns onto Gemini's user/model roles.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
