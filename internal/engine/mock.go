package engine

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an offline engine that reflects the latest user message back.
// It lets the whole system run without a model server.
type Mock struct{}

// NewMock returns a Mock engine.
func NewMock() *Mock { return &Mock{} }

func (Mock) Complete(_ context.Context, messages []Message) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return fmt.Sprintf("I hear you. You said %q. Tell me a little more about that.", messages[i].Content), nil
		}
	}
	return "Hello! Tell me a little about yourself.", nil
}

// Scripted returns canned replies in order and records every call.
// When the replies run out it returns Err, or an error if Err is nil.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	calls   [][]Message

	Err error
}

// NewScripted creates a Scripted engine with the given replies.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Complete(_ context.Context, messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]Message, len(messages))
	copy(cp, messages)
	s.calls = append(s.calls, cp)

	if len(s.replies) == 0 {
		if s.Err != nil {
			return "", s.Err
		}
		return "", fmt.Errorf("scripted engine: no reply left for call %d", len(s.calls))
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Push appends replies to the queue.
func (s *Scripted) Push(replies ...string) {
	s.mu.Lock()
	s.replies = append(s.replies, replies...)
	s.mu.Unlock()
}

// Calls returns a copy of every message list received so far.
func (s *Scripted) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Message, len(s.calls))
	copy(out, s.calls)
	return out
}

// Remaining reports how many replies are still queued.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
