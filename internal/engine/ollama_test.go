package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/talkmatch/internal/ollama"
)

func chatServer(t *testing.T, reply string, got *ollamaChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: Assistant(reply), DoneReason: "stop"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEngine_Complete(t *testing.T) {
	var got ollamaChatRequest
	srv := chatServer(t, "hello from ollama", &got)

	e := NewOllamaEngine(srv.URL, "llama3.2", 120)
	result, err := e.Complete(context.Background(), []Message{
		System("You are an ambassador."),
		User("hi"),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result != "hello from ollama" {
		t.Errorf("got %q, want %q", result, "hello from ollama")
	}

	if got.Model != "llama3.2" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0] != System("You are an ambassador.") {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Options == nil || got.Options.NumPredict != 120 {
		t.Errorf("options = %+v, want num_predict 120", got.Options)
	}
}

func TestOllamaEngine_Complete_NoTokenCap(t *testing.T) {
	var got ollamaChatRequest
	srv := chatServer(t, "ok", &got)

	if _, err := NewOllamaEngine(srv.URL, "llama3.2", 0).Complete(context.Background(), []Message{User("hi")}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Options != nil {
		t.Errorf("options = %+v, want none", got.Options)
	}
}

func TestOllamaEngine_Complete_BlankReply(t *testing.T) {
	srv := chatServer(t, "  \n", nil)

	result, err := NewOllamaEngine(srv.URL, "llama3.2", 0).Complete(context.Background(), []Message{User("hi")})
	if err != nil {
		t.Fatalf("blank reply is valid, got %v", err)
	}
	if result != "" {
		t.Errorf("got %q, want empty reply", result)
	}
}

func TestOllamaEngine_Complete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEngine(srv.URL, "missing", 0).Complete(context.Background(), []Message{User("hi")})
	var oe *ollama.Error
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *ollama.Error", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error = %q, want server message", err)
	}
}

func TestOllamaEngine_Puller(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest"}]}`)
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"downloading","total":1000,"completed":500}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var p Puller = NewOllamaEngine(srv.URL, "llama3.2", 0)
	if !p.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
	if !p.HasModel(context.Background(), "llama3.2") {
		t.Error("HasModel(llama3.2) = false, want true")
	}
	if p.HasModel(context.Background(), "qwen2.5") {
		t.Error("HasModel(qwen2.5) = true, want false")
	}

	var lines []PullProgress
	if err := p.PullModel(context.Background(), "qwen2.5", func(pr PullProgress) { lines = append(lines, pr) }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(lines) != 2 || lines[0].Completed != 500 || lines[1].Status != "success" {
		t.Errorf("progress = %+v", lines)
	}
}

func TestOllamaEngine_IsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if NewOllamaEngine(srv.URL, "llama3.2", 0).IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}
