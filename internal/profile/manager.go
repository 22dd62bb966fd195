package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/engine"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store and jsonfile.Store.
type Store interface {
	GetProfile(name string) (string, error)
	SetProfile(name, summary string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cachedSummary struct {
	summary string
	at      time.Time
}

// Manager keeps one free-text summary per user. Summaries are rewritten
// wholesale by the AI service on every update and cached for a short TTL.
type Manager struct {
	store      Store
	comp       *composer.Composer
	objectives []string
	clock      Clock
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSummary
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store, comp *composer.Composer) *Manager {
	return NewManagerWithClock(store, comp, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, comp *composer.Composer, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:      store,
		comp:       comp,
		objectives: Objectives,
		clock:      clock,
		ttl:        ttl,
		cache:      make(map[string]cachedSummary),
	}
}

// Update sends name's current summary and the new text to ai and stores the
// reply verbatim as the new summary. AI and storage errors are returned.
func (m *Manager) Update(ctx context.Context, ai engine.Engine, name, text string) (string, error) {
	existing := m.Read(name)

	summary, err := ai.Complete(ctx, m.comp.ProfileUpdate(existing, text, m.objectives))
	if err != nil {
		return "", fmt.Errorf("updating profile for %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfile(name, summary); err != nil {
		delete(m.cache, name)
		return "", fmt.Errorf("saving profile for %s: %w", name, err)
	}
	m.cache[name] = cachedSummary{summary: summary, at: m.clock.Now()}
	return summary, nil
}

// Read returns the stored summary for name, or "" if none exists. It never
// fails: storage errors are logged and treated as an empty profile.
func (m *Manager) Read(name string) string {
	m.mu.RLock()
	if c, ok := m.cache[name]; ok && m.clock.Now().Before(c.at.Add(m.ttl)) {
		m.mu.RUnlock()
		return c.summary
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cache[name]; ok && m.clock.Now().Before(c.at.Add(m.ttl)) {
		return c.summary
	}

	summary, err := m.store.GetProfile(name)
	if err != nil {
		slog.Warn("could not read profile, treating as empty", "user", name, "error", err)
		return ""
	}
	m.cache[name] = cachedSummary{summary: summary, at: m.clock.Now()}
	return summary
}

// Display returns the summary for presentation, or EmptyDisplay.
func (m *Manager) Display(name string) string {
	if s := m.Read(name); s != "" {
		return s
	}
	return EmptyDisplay
}

// Invalidate drops every cached summary.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cache = make(map[string]cachedSummary)
	m.mu.Unlock()
}
