// Package ollama talks to a local Ollama server. It knows the model
// inventory and pull protocol; the chat payload itself belongs to the
// engine that speaks it.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	reachTimeout     = 2 * time.Second
	inventoryTimeout = 10 * time.Second
)

// Client is an HTTP client for one Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for the server at baseURL. Requests carry no client
// timeout; pulls and completions are bounded by their contexts.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Error is a failure reported by the server, either as a non-200 status or
// as an error line inside a streamed response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: status %d", e.Status)
	}
	return fmt.Sprintf("ollama: status %d: %s", e.Status, e.Message)
}

// Inventory lists the models available on the server, tag included
// ("llama3.2:latest").
type Inventory []string

// Has reports whether model is present. A name without a tag matches any
// tag of that model.
func (inv Inventory) Has(model string) bool {
	for _, m := range inv {
		if m == model {
			return true
		}
		if !strings.Contains(model, ":") && strings.HasPrefix(m, model+":") {
			return true
		}
	}
	return false
}

// Reachable reports whether the server answers an inventory request.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()
	_, err := c.Inventory(ctx)
	return err == nil
}

// Inventory fetches the local model list.
func (c *Client) Inventory(ctx context.Context) (Inventory, error) {
	ctx, cancel := context.WithTimeout(ctx, inventoryTimeout)
	defer cancel()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	inv := make(Inventory, len(tags.Models))
	for i, m := range tags.Models {
		inv[i] = m.Name
	}
	return inv, nil
}

// Progress is one line of a streamed pull.
type Progress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns how much of the current layer is downloaded, and false
// when the line carries no sizes.
func (p Progress) Percent() (float64, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	return float64(p.Completed) / float64(p.Total) * 100, true
}

// Pull downloads model, handing every progress line to fn (which may be
// nil). An error line in the stream ends the pull with an *Error.
func (c *Client) Pull(ctx context.Context, model string, fn func(Progress)) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/pull", map[string]any{"name": model, "stream": true})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", model, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p Progress
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading pull progress for %s: %w", model, err)
		}
		if p.Error != "" {
			return fmt.Errorf("pulling %s: %w", model, &Error{Status: resp.StatusCode, Message: p.Error})
		}
		if fn != nil {
			fn(p)
		}
	}
}

// PostJSON posts in to path and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPost, path, in, out)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// send performs the request and turns a non-200 answer into an *Error. The
// caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

// readError extracts Ollama's {"error": "..."} body, falling back to the
// raw text.
func readError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &env) == nil && env.Error != "" {
		msg = env.Error
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
