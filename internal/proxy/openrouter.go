package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// ErrNoChoices is returned when a completion response carries no choices.
var ErrNoChoices = errors.New("completion response has no choices")

// Client communicates with OpenRouter or any other OpenAI-compatible server.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewClient creates an OpenRouter client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		referer: "https://github.com/kalambet/talkmatch",
		title:   "talkmatch",
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL, such
// as a local mlx-lm server or a test server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Chat sends a non-streaming chat completion request and decodes the
// response. HTTP 429 responses are retried with exponential backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		resp, err := c.doChat(ctx, body)
		if err == nil {
			return resp, nil
		}

		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// Complete sends the messages to model and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{Model: model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *Client) doChat(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// ListModels returns the list of available models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
