// Package chat owns a single conversation: its transcript, its ambassador
// and the choice of directive injected before each AI call.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/talkmatch/internal/ambassador"
	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/engine"
	"github.com/kalambet/talkmatch/internal/readiness"
)

// GhostPlaceholder is shown in place of an empty reply.
const GhostPlaceholder = "(no reply)"

// Display renders a reply for presentation. Empty replies are valid and
// become GhostPlaceholder.
func Display(reply string) string {
	if strings.TrimSpace(reply) == "" {
		return GhostPlaceholder
	}
	return reply
}

// TranscriptStore persists one transcript per session name.
type TranscriptStore interface {
	LoadTranscript(name string) ([]engine.Message, error)
	SaveTranscript(name string, messages []engine.Message) error
}

// Profiles is the profile store a session updates after every inbound message.
type Profiles interface {
	Update(ctx context.Context, ai engine.Engine, name, text string) (string, error)
	Read(name string) string
}

// Options configures a Session.
type Options struct {
	Name       string
	AI         engine.Engine
	Profiles   Profiles
	Store      TranscriptStore
	Composer   *composer.Composer
	Objectives []string
}

// Session is one persona's conversation with its ambassador.
type Session struct {
	name       string
	ai         engine.Engine
	profiles   Profiles
	store      TranscriptStore
	composer   *composer.Composer
	objectives []string
	amb        *ambassador.Ambassador
	logger     *slog.Logger

	send sync.Mutex // serializes transcript writers: SendClientMessage and Deliver

	mu       sync.RWMutex
	messages []engine.Message
	fake     *FakeUser
	onUpdate func(name string)
}

// New creates a Session, restoring its persisted transcript. A session
// without history starts with the ambassador preamble and a greeting, which
// are saved immediately.
func New(opts Options) (*Session, error) {
	s := &Session{
		name:       opts.Name,
		ai:         opts.AI,
		profiles:   opts.Profiles,
		store:      opts.Store,
		composer:   opts.Composer,
		objectives: opts.Objectives,
		amb:        ambassador.New(),
		logger:     slog.Default().With("session", opts.Name),
	}

	history, err := s.store.LoadTranscript(s.name)
	if err != nil {
		return nil, fmt.Errorf("loading transcript for %s: %w", s.name, err)
	}
	if len(history) > 0 {
		if history[0].Role != engine.RoleSystem {
			history = append([]engine.Message{s.composer.Preamble()}, history...)
		}
		s.messages = history
		return s, nil
	}

	s.messages = []engine.Message{
		s.composer.Preamble(),
		engine.Assistant(s.composer.Greeting(s.name)),
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the session's persona name.
func (s *Session) Name() string { return s.name }

// Ambassador returns the session's ambassador.
func (s *Session) Ambassador() *ambassador.Ambassador { return s.amb }

// SetUpdateCallback registers fn to run after every transcript change.
func (s *Session) SetUpdateCallback(fn func(name string)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// SetFakeUser installs a scripted stand-in. Passing nil removes it.
func (s *Session) SetFakeUser(f *FakeUser) {
	s.mu.Lock()
	s.fake = f
	s.mu.Unlock()
}

// FakeUser returns the installed stand-in, or nil.
func (s *Session) FakeUser() *FakeUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fake
}

// SendClientMessage handles one inbound message from name and returns the
// reply. The profile of name is always updated first. AI and storage errors
// are returned as-is; the user message stays in the transcript.
func (s *Session) SendClientMessage(ctx context.Context, name, text string) (string, error) {
	s.send.Lock()
	defer s.send.Unlock()

	s.append(engine.User(text))

	if _, err := s.profiles.Update(ctx, s.ai, name, text); err != nil {
		s.saveQuietly()
		return "", err
	}

	reply, err := s.reply(ctx, name, text)
	if err != nil {
		s.saveQuietly()
		return "", err
	}

	s.append(engine.Assistant(reply))
	if err := s.persist(); err != nil {
		return "", err
	}
	s.notify()
	return reply, nil
}

func (s *Session) reply(ctx context.Context, name, text string) (string, error) {
	if f := s.FakeUser(); f != nil {
		return f.Reply(), nil
	}

	snap := s.amb.Snapshot()
	if snap.State == ambassador.Linked {
		return text, nil
	}

	transcript := s.Messages()
	if directive, ok := s.directive(snap, name); ok {
		transcript = composer.Augment(transcript, directive)
	}
	reply, err := s.ai.Complete(ctx, transcript)
	if err != nil {
		return "", fmt.Errorf("generating reply for %s: %w", s.name, err)
	}
	return reply, nil
}

func (s *Session) directive(snap ambassador.Snapshot, name string) (engine.Message, bool) {
	switch snap.State {
	case ambassador.Acting:
		return s.composer.ActingDirective(snap.Persona, s.profiles.Read(snap.Persona)), true
	case ambassador.Linking:
		return s.composer.LinkingDirective(snap.LinkTarget, snap.LinkContext), true
	case ambassador.CollectingInfo:
		missing := readiness.Missing(s.objectives, s.profiles.Read(name))
		return s.composer.CollectInfoDirective(missing)
	}
	return engine.Message{}, false
}

// Deliver appends text relayed from a linked counterpart as an assistant
// message and persists the transcript. It waits for any message the session
// is handling, so a relay never interleaves with its save.
func (s *Session) Deliver(text string) error {
	s.send.Lock()
	defer s.send.Unlock()

	s.append(engine.Assistant(text))
	if err := s.persist(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []engine.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UserMessageCount returns how many user-authored messages the transcript holds.
func (s *Session) UserMessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.Role == engine.RoleUser {
			n++
		}
	}
	return n
}

// LastUserMessage returns the most recent user-authored message, or "".
func (s *Session) LastUserMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == engine.RoleUser {
			return s.messages[i].Content
		}
	}
	return ""
}

func (s *Session) append(m engine.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

func (s *Session) persist() error {
	if err := s.store.SaveTranscript(s.name, s.Messages()); err != nil {
		return fmt.Errorf("saving transcript for %s: %w", s.name, err)
	}
	return nil
}

func (s *Session) saveQuietly() {
	if err := s.persist(); err != nil {
		s.logger.Warn("could not save transcript", "error", err)
	}
}

func (s *Session) notify() {
	s.mu.RLock()
	fn := s.onUpdate
	s.mu.RUnlock()
	if fn != nil {
		fn(s.name)
	}
}
