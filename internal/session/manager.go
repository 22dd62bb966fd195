// Package session owns one chat session per persona and runs the
// cross-session protocol: match assignment after scoring, linking two
// mutually matched sessions, relaying once linked, and official matches.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/talkmatch/internal/ambassador"
	"github.com/kalambet/talkmatch/internal/chat"
	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/engine"
	"github.com/kalambet/talkmatch/internal/matcher"
	"github.com/kalambet/talkmatch/internal/persona"
	"github.com/kalambet/talkmatch/internal/profile"
	"github.com/kalambet/talkmatch/internal/readiness"
)

// ErrUnknownPersona is returned for names that have no session.
var ErrUnknownPersona = errors.New("unknown persona")

const (
	DefaultLinkThreshold = 2
	DefaultActThreshold  = 0.5
	DefaultTopN          = 3
)

// Store is everything the manager persists.
type Store interface {
	chat.TranscriptStore
	profile.Store
	matcher.Store
	CountPersister
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Personas   []persona.Persona
	AI         engine.Engine
	Store      Store
	Composer   *composer.Composer
	Objectives []string

	// Counts overrides the pair counter backed by Store.
	Counts CountStore

	LinkThreshold int
	ActThreshold  float64
	TopN          int

	// ReadinessThreshold enables the readiness filter when > 0.
	ReadinessThreshold float64
	// Filters run after the readiness filter.
	Filters []readiness.Filter
}

// Reply is the outcome of one message handled by a session.
type Reply struct {
	Session string `json:"session"`
	Text    string `json:"text"`
	Display string `json:"display"`
	Status  string `json:"status"`
	State   string `json:"state"`
}

// AutoReply is a persona-generated message and the ambassador's answer to it.
type AutoReply struct {
	Message string `json:"message"`
	Reply   Reply  `json:"reply"`
}

// Manager coordinates every persona session.
type Manager struct {
	personas      []persona.Persona
	names         []string
	ai            engine.Engine
	composer      *composer.Composer
	profiles      *profile.Manager
	matcher       *matcher.Matcher
	counts        CountStore
	filters       readiness.Pipeline
	sessions      map[string]*chat.Session
	linkThreshold int
	actThreshold  float64
	topN          int
	logger        *slog.Logger

	link sync.Mutex // guards cross-session transitions

	cbMu     sync.RWMutex
	onUpdate func(Board)
}

// New builds a Manager and one session per persona, restoring transcripts,
// scores, official matches and counts from opts.Store.
func New(opts Options) (*Manager, error) {
	if len(opts.Personas) == 0 {
		return nil, errors.New("no personas configured")
	}
	comp := opts.Composer
	if comp == nil {
		comp = composer.Default()
	}
	objectives := opts.Objectives
	if objectives == nil {
		objectives = profile.Objectives
	}

	m := &Manager{
		personas:      append([]persona.Persona(nil), opts.Personas...),
		names:         persona.Names(opts.Personas),
		ai:            opts.AI,
		composer:      comp,
		profiles:      profile.NewManager(opts.Store, comp),
		sessions:      make(map[string]*chat.Session, len(opts.Personas)),
		linkThreshold: opts.LinkThreshold,
		actThreshold:  opts.ActThreshold,
		topN:          opts.TopN,
		logger:        slog.Default(),
	}
	if m.linkThreshold <= 0 {
		m.linkThreshold = DefaultLinkThreshold
	}
	if m.actThreshold <= 0 {
		m.actThreshold = DefaultActThreshold
	}
	if m.topN <= 0 {
		m.topN = DefaultTopN
	}

	if opts.ReadinessThreshold > 0 {
		eval := readiness.NewEvaluator(opts.AI, comp, opts.ReadinessThreshold)
		m.filters = append(m.filters, readiness.NewReadinessFilter(eval, m.profiles, objectives))
	}
	m.filters = append(m.filters, opts.Filters...)

	m.counts = opts.Counts
	if m.counts == nil {
		c, err := NewCounter(opts.Store)
		if err != nil {
			return nil, err
		}
		m.counts = c
	}

	mt, err := matcher.New(m.names, opts.Store, comp)
	if err != nil {
		return nil, err
	}
	m.matcher = mt

	for _, name := range m.names {
		s, err := chat.New(chat.Options{
			Name:       name,
			AI:         opts.AI,
			Profiles:   m.profiles,
			Store:      opts.Store,
			Composer:   comp,
			Objectives: objectives,
		})
		if err != nil {
			return nil, err
		}
		s.SetUpdateCallback(func(string) { m.refresh() })
		m.sessions[name] = s
	}

	for _, p := range mt.OfficialPairs() {
		a, okA := m.sessions[p[0]]
		b, okB := m.sessions[p[1]]
		if !okA || !okB {
			continue
		}
		a.Ambassador().DeclareMatch(p[1])
		b.Ambassador().DeclareMatch(p[0])
	}
	return m, nil
}

// Names returns persona names in configured order.
func (m *Manager) Names() []string { return append([]string(nil), m.names...) }

// Personas returns the configured personas.
func (m *Manager) Personas() []persona.Persona {
	return append([]persona.Persona(nil), m.personas...)
}

// Matcher returns the underlying matcher.
func (m *Manager) Matcher() *matcher.Matcher { return m.matcher }

// Profiles returns the shared profile store.
func (m *Manager) Profiles() *profile.Manager { return m.profiles }

// Session returns the session for name.
func (m *Manager) Session(name string) (*chat.Session, error) {
	s, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}
	return s, nil
}

// SetUpdateCallback registers fn to receive the board after every change.
func (m *Manager) SetUpdateCallback(fn func(Board)) {
	m.cbMu.Lock()
	m.onUpdate = fn
	m.cbMu.Unlock()
}

// Calculate filters eligible personas, scores them and points each
// eligible persona without an official match at its best partner.
func (m *Manager) Calculate(ctx context.Context) error {
	eligible, err := m.filters.Filter(ctx, m.Names())
	if err != nil {
		return fmt.Errorf("filtering candidates: %w", err)
	}
	m.logger.Info("calculating matches", "eligible", len(eligible), "total", len(m.names))

	if err := m.matcher.Calculate(ctx, m.ai, m.profiles, eligible); err != nil {
		return err
	}

	candidates := make(map[string]bool, len(eligible))
	for _, name := range eligible {
		candidates[name] = true
	}

	m.link.Lock()
	for _, name := range eligible {
		if m.matcher.HasOfficialMatch(name) {
			continue
		}
		m.assign(name, candidates)
	}
	m.dropBrokenLinks()
	m.link.Unlock()

	m.refresh()
	return nil
}

// assign expects m.link to be held.
func (m *Manager) assign(name string, candidates map[string]bool) {
	amb := m.sessions[name].Ambassador()
	partner, ok := m.bestPartner(name, candidates)
	if !ok {
		amb.SetPersona("")
		return
	}
	switch amb.State() {
	case ambassador.Acting, ambassador.Linking, ambassador.Linked:
		if amb.Counterpart() == partner {
			return
		}
	}
	amb.SetPersona(partner)
}

// dropBrokenLinks sends every linking or linked ambassador whose target no
// longer links back to acting as that target again, or to collecting info
// when the target is gone or officially matched. It expects m.link to be held.
func (m *Manager) dropBrokenLinks() {
	for _, name := range m.names {
		amb := m.sessions[name].Ambassador()
		if st := amb.State(); st != ambassador.Linking && st != ambassador.Linked {
			continue
		}
		target := amb.LinkTarget()
		other, ok := m.sessions[target]
		if ok {
			o := other.Ambassador()
			if st := o.State(); (st == ambassador.Linking || st == ambassador.Linked) && o.LinkTarget() == name {
				continue
			}
		}

		m.logger.Info("link broken by recalculation", "persona", name, "target", target)
		if !ok || m.matcher.HasOfficialMatch(target) {
			amb.SetPersona("")
			continue
		}
		amb.SetPersona(target)
	}
}

// bestPartner picks the highest scored candidate above the act threshold.
// Personas outside candidates are skipped even when an older score for them
// is still in the matrix.
func (m *Manager) bestPartner(name string, candidates map[string]bool) (string, bool) {
	for _, c := range m.matcher.TopMatches(name, len(m.names)) {
		if !candidates[c.User] || m.matcher.HasOfficialMatch(c.User) {
			continue
		}
		if c.Score > m.actThreshold {
			return c.User, true
		}
		return "", false
	}
	return "", false
}

// SendMessage delivers text from name to its session, counts it against the
// current pairing, relays it when linked and advances the linking protocol.
func (m *Manager) SendMessage(ctx context.Context, name, text string) (Reply, error) {
	s, err := m.Session(name)
	if err != nil {
		return Reply{}, err
	}

	reply, err := s.SendClientMessage(ctx, name, text)
	if err != nil {
		return Reply{}, err
	}

	snap := s.Ambassador().Snapshot()
	if other := s.Ambassador().Counterpart(); other != "" {
		if _, err := m.counts.Increment(name, other); err != nil {
			m.logger.Warn("could not count message", "persona", name, "error", err)
		}
	}
	if snap.State == ambassador.Linked {
		if err := m.relay(snap.LinkTarget, text); err != nil {
			return Reply{}, err
		}
	}

	m.link.Lock()
	m.maybeLink(name)
	m.maybeFinalizeLink(name)
	m.link.Unlock()

	m.refresh()

	snap = s.Ambassador().Snapshot()
	return Reply{
		Session: name,
		Text:    reply,
		Display: chat.Display(reply),
		Status:  snap.Status,
		State:   snap.StateName,
	}, nil
}

func (m *Manager) relay(to, text string) error {
	target, ok := m.sessions[to]
	if !ok {
		return nil
	}
	if err := target.Deliver(text); err != nil {
		return fmt.Errorf("relaying to %s: %w", to, err)
	}
	return nil
}

// maybeLink moves name and its persona into linking once both act as each
// other and both have written at least linkThreshold messages. It expects
// m.link to be held.
func (m *Manager) maybeLink(name string) {
	a := m.sessions[name]
	if a.Ambassador().State() != ambassador.Acting {
		return
	}
	other := a.Ambassador().Persona()
	b, ok := m.sessions[other]
	if !ok {
		return
	}
	if b.Ambassador().State() != ambassador.Acting || b.Ambassador().Persona() != name {
		return
	}
	if a.UserMessageCount() < m.linkThreshold || b.UserMessageCount() < m.linkThreshold {
		return
	}

	if err := a.Ambassador().BeginLink(other, b.LastUserMessage()); err != nil {
		m.logger.Warn("could not begin link", "persona", name, "error", err)
		return
	}
	if err := b.Ambassador().BeginLink(name, a.LastUserMessage()); err != nil {
		m.logger.Warn("could not begin link", "persona", other, "error", err)
		return
	}
	m.logger.Info("linking sessions", "a", name, "b", other)
}

// maybeFinalizeLink links name and its target for good once both are
// linking with each other and their latest messages match, ignoring case.
// It expects m.link to be held.
func (m *Manager) maybeFinalizeLink(name string) {
	a := m.sessions[name]
	if a.Ambassador().State() != ambassador.Linking {
		return
	}
	other := a.Ambassador().LinkTarget()
	b, ok := m.sessions[other]
	if !ok {
		return
	}
	if b.Ambassador().State() != ambassador.Linking || b.Ambassador().LinkTarget() != name {
		return
	}
	if !sameMessage(a.LastUserMessage(), b.LastUserMessage()) {
		return
	}

	if err := a.Ambassador().FinalizeLink(); err != nil {
		m.logger.Warn("could not finalize link", "persona", name, "error", err)
		return
	}
	if err := b.Ambassador().FinalizeLink(); err != nil {
		m.logger.Warn("could not finalize link", "persona", other, "error", err)
		return
	}
	m.logger.Info("sessions linked", "a", name, "b", other)
}

func sameMessage(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AutoReply has the AI write name's next message as the persona itself and
// sends it through SendMessage.
func (m *Manager) AutoReply(ctx context.Context, name string) (AutoReply, error) {
	s, err := m.Session(name)
	if err != nil {
		return AutoReply{}, err
	}
	p, _ := persona.Find(m.personas, name)

	msgs := []engine.Message{engine.System(p.SystemPrompt())}
	for _, msg := range s.Messages() {
		switch msg.Role {
		case engine.RoleUser:
			msgs = append(msgs, engine.Assistant(msg.Content))
		case engine.RoleAssistant:
			msgs = append(msgs, engine.User(msg.Content))
		}
	}

	text, err := m.ai.Complete(ctx, msgs)
	if err != nil {
		return AutoReply{}, fmt.Errorf("writing as %s: %w", name, err)
	}
	reply, err := m.SendMessage(ctx, name, text)
	if err != nil {
		return AutoReply{}, err
	}
	return AutoReply{Message: text, Reply: reply}, nil
}

// DeclareMatch officially matches a and b, excluding them from further
// scoring and assignment.
func (m *Manager) DeclareMatch(a, b string) error {
	sa, err := m.Session(a)
	if err != nil {
		return err
	}
	sb, err := m.Session(b)
	if err != nil {
		return err
	}
	if err := m.matcher.DeclareOfficialMatch(a, b); err != nil {
		return err
	}

	m.link.Lock()
	sa.Ambassador().DeclareMatch(b)
	sb.Ambassador().DeclareMatch(a)
	m.link.Unlock()

	m.logger.Info("official match declared", "a", a, "b", b)
	m.refresh()
	return nil
}

// Clear resets all scores, official matches and message counts and puts
// every ambassador back to collecting info.
func (m *Manager) Clear() error {
	if err := m.matcher.Clear(); err != nil {
		return err
	}
	if err := m.counts.Reset(); err != nil {
		return err
	}

	m.link.Lock()
	for _, s := range m.sessions {
		s.Ambassador().SetPersona("")
	}
	m.link.Unlock()

	m.refresh()
	return nil
}

// ShowProfile returns name's profile for display.
func (m *Manager) ShowProfile(name string) (string, error) {
	if _, err := m.Session(name); err != nil {
		return "", err
	}
	return m.profiles.Display(name), nil
}

// SetScript installs a scripted stand-in for name. No replies removes it.
func (m *Manager) SetScript(name string, replies []string) error {
	s, err := m.Session(name)
	if err != nil {
		return err
	}
	if len(replies) == 0 {
		s.SetFakeUser(nil)
		return nil
	}
	s.SetFakeUser(chat.NewFakeUser(replies...))
	return nil
}

// Transcript returns a copy of name's messages.
func (m *Manager) Transcript(name string) ([]engine.Message, error) {
	s, err := m.Session(name)
	if err != nil {
		return nil, err
	}
	return s.Messages(), nil
}

func (m *Manager) refresh() {
	m.cbMu.RLock()
	fn := m.onUpdate
	m.cbMu.RUnlock()
	if fn != nil {
		fn(m.Board())
	}
}
