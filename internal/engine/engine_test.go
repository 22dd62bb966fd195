package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestScripted_RepliesInOrderAndRecordsCalls(t *testing.T) {
	s := NewScripted("one", "")
	ctx := context.Background()

	got, err := s.Complete(ctx, []Message{User("a")})
	if err != nil || got != "one" {
		t.Fatalf("first = %q, %v", got, err)
	}
	got, err = s.Complete(ctx, []Message{System("sys"), User("b")})
	if err != nil || got != "" {
		t.Fatalf("second = %q, %v", got, err)
	}
	if _, err := s.Complete(ctx, nil); err == nil {
		t.Fatal("expected error when script is exhausted")
	}

	calls := s.Calls()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	if calls[1][0].Role != RoleSystem || calls[1][1].Content != "b" {
		t.Errorf("second call = %+v", calls[1])
	}
}

func TestScripted_CustomError(t *testing.T) {
	boom := errors.New("provider unreachable")
	s := NewScripted()
	s.Err = boom
	if _, err := s.Complete(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	s.Push("late")
	if got, _ := s.Complete(context.Background(), nil); got != "late" {
		t.Errorf("got %q after Push", got)
	}
}

func TestMock_EchoesLatestUserMessage(t *testing.T) {
	got, err := NewMock().Complete(context.Background(), []Message{
		System("role"), User("first"), Assistant("ok"), User("second"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `"second"`) {
		t.Errorf("reply = %q, want it to quote the latest user message", got)
	}
}

func TestFunc(t *testing.T) {
	var e Engine = Func(func(_ context.Context, msgs []Message) (string, error) {
		return fmt.Sprintf("%d", len(msgs)), nil
	})
	got, _ := e.Complete(context.Background(), []Message{User("x"), User("y")})
	if got != "2" {
		t.Errorf("got %q", got)
	}
}

func TestCompatEngine_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"0.8"}}]}`)
	}))
	defer srv.Close()

	e := NewCompatEngine(srv.URL, "", "local-model", 150)
	got, err := e.Complete(context.Background(), []Message{User("rate")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "0.8" {
		t.Errorf("got %q, want 0.8", got)
	}
}

func TestCompatEngine_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"local-model"}]}`)
	}))
	defer srv.Close()

	var e Engine = NewCompatEngine(srv.URL, "", "local-model", 150)
	p, ok := e.(Pinger)
	if !ok {
		t.Fatal("CompatEngine does not implement Pinger")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	srv.Close()
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected error once the server is gone")
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		System("You are an ambassador."),
		User("hi"),
		Assistant("hello"),
		System("Ask about kids."),
	})
	if system != "You are an ambassador.\n\nAsk about kids." {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("contents = %d, want 2", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
	if contents[1].Parts[0].Text != "hello" {
		t.Errorf("text = %q", contents[1].Parts[0].Text)
	}
}
