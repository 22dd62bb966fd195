// Package ambassador implements the per-session mediation state machine.
//
// An ambassador starts out collecting information about its user. Once the
// matcher pairs the user with someone, the ambassador acts as that person,
// then tries to link the two real conversations, and finally relays them
// verbatim. An explicit match can be declared from any state.
package ambassador

import (
	"errors"
	"fmt"
	"sync"
)

// State is the ambassador's current mode.
type State int

const (
	CollectingInfo State = iota
	Acting
	Linking
	Linked
	Matched
)

func (s State) String() string {
	switch s {
	case CollectingInfo:
		return "collecting_info"
	case Acting:
		return "acting"
	case Linking:
		return "linking"
	case Linked:
		return "linked"
	case Matched:
		return "matched"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := CollectingInfo; st <= Matched; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return CollectingInfo, fmt.Errorf("unknown ambassador state %q", s)
}

// ErrInvalidTransition is returned when an event is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("invalid ambassador transition")

// Snapshot is a consistent copy of an ambassador's fields.
type Snapshot struct {
	State       State  `json:"-"`
	StateName   string `json:"state"`
	Persona     string `json:"persona,omitempty"`
	LinkTarget  string `json:"link_target,omitempty"`
	LinkContext string `json:"link_context,omitempty"`
	Status      string `json:"status"`
}

// Ambassador is safe for concurrent use.
type Ambassador struct {
	mu          sync.RWMutex
	state       State
	persona     string
	linkTarget  string
	linkContext string
}

// New returns an ambassador in the collecting_info state.
func New() *Ambassador {
	return &Ambassador{}
}

// SetPersona makes the ambassador act as name. An empty name resets it to
// collecting_info. Allowed from any state; clears any link target and context.
func (a *Ambassador) SetPersona(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.persona = name
	a.linkTarget = ""
	a.linkContext = ""
	if name != "" {
		a.state = Acting
	} else {
		a.state = CollectingInfo
	}
}

// BeginLink starts linking with other, seeded with the counterpart's latest
// message. Only allowed while acting.
func (a *Ambassador) BeginLink(other, context string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Acting {
		return fmt.Errorf("%w: begin_link from %s", ErrInvalidTransition, a.state)
	}
	if other == "" {
		return fmt.Errorf("%w: begin_link without a target", ErrInvalidTransition)
	}
	a.linkTarget = other
	a.linkContext = context
	a.state = Linking
	return nil
}

// FinalizeLink completes a link. Only allowed while linking.
func (a *Ambassador) FinalizeLink() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Linking {
		return fmt.Errorf("%w: finalize_link from %s", ErrInvalidTransition, a.state)
	}
	a.state = Linked
	return nil
}

// DeclareMatch records an official match with other. Allowed from any state.
func (a *Ambassador) DeclareMatch(other string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.linkTarget = other
	a.state = Matched
}

// State returns the current state.
func (a *Ambassador) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Persona returns the name the ambassador currently acts as.
func (a *Ambassador) Persona() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.persona
}

// LinkTarget returns the session being linked or matched with.
func (a *Ambassador) LinkTarget() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.linkTarget
}

// LinkContext returns the counterpart message that seeded linking.
func (a *Ambassador) LinkContext() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.linkContext
}

// Counterpart returns the other party of the current pairing: the link
// target when linking, linked or matched, the persona when acting, and ""
// while collecting info.
func (a *Ambassador) Counterpart() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case Acting:
		return a.persona
	case Linking, Linked, Matched:
		if a.linkTarget != "" {
			return a.linkTarget
		}
		return a.persona
	}
	return ""
}

// Status returns a human-readable label for the current state.
func (a *Ambassador) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status()
}

func (a *Ambassador) status() string {
	switch {
	case a.state == Acting && a.persona != "":
		return "acting as " + a.persona
	case a.state == Linking && a.linkTarget != "":
		return "trying to link with " + a.linkTarget
	case a.state == Linked && a.linkTarget != "":
		return "linked with " + a.linkTarget
	case a.state == Matched && a.linkTarget != "":
		return "matched with " + a.linkTarget
	}
	return "collecting info"
}

// Snapshot returns a consistent copy of all fields.
func (a *Ambassador) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		State:       a.state,
		StateName:   a.state.String(),
		Persona:     a.persona,
		LinkTarget:  a.linkTarget,
		LinkContext: a.linkContext,
		Status:      a.status(),
	}
}
