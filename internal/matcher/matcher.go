// Package matcher keeps the symmetric compatibility matrix over all known
// users, recomputes it with an AI judge and answers top-match queries.
//
// Officially matched pairs are tracked in a separate set. Score reports 1.0
// for such a pair, but a judged score of 1.0 does not make a pair official.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/engine"
)

// OfficialScore is the value Score reports for an officially matched pair.
const OfficialScore = 1.0

// Store persists the score matrix and the official pair set.
type Store interface {
	LoadScores() (map[string]map[string]float64, error)
	SaveScores(scores map[string]map[string]float64) error
	LoadOfficial() ([][2]string, error)
	SaveOfficial(pairs [][2]string) error
}

// ProfileReader returns the stored summary for a user, or "".
type ProfileReader interface {
	Read(name string) string
}

// Match is one entry of a top-match list.
type Match struct {
	User  string  `json:"user"`
	Score float64 `json:"score"`
}

// Matcher holds the score matrix for a fixed, ordered set of users.
type Matcher struct {
	users    []string
	store    Store
	composer *composer.Composer
	logger   *slog.Logger

	calc sync.Mutex // one Calculate at a time

	mu       sync.RWMutex
	scores   map[string]map[string]float64
	official map[[2]string]bool
}

// New creates a Matcher for users, loading any persisted state from store.
// Pairs missing from the stored matrix start at 0.
func New(users []string, store Store, comp *composer.Composer) (*Matcher, error) {
	m := &Matcher{
		users:    append([]string(nil), users...),
		store:    store,
		composer: comp,
		logger:   slog.Default(),
		official: make(map[[2]string]bool),
	}
	m.scores = m.zeroMatrix()

	stored, err := store.LoadScores()
	if err != nil {
		return nil, fmt.Errorf("loading match matrix: %w", err)
	}
	for u, row := range stored {
		if _, ok := m.scores[u]; !ok {
			continue
		}
		for v, s := range row {
			if _, ok := m.scores[u][v]; ok {
				m.scores[u][v] = s
			}
		}
	}

	pairs, err := store.LoadOfficial()
	if err != nil {
		return nil, fmt.Errorf("loading official matches: %w", err)
	}
	for _, p := range pairs {
		m.official[pairKey(p[0], p[1])] = true
	}
	return m, nil
}

// Users returns the known users in their configured order.
func (m *Matcher) Users() []string {
	return append([]string(nil), m.users...)
}

// Calculate asks the judge to score every unordered pair of users, in order,
// skipping officially matched pairs. A nil users slice means all known users;
// an empty one scores nothing. Unknown names are ignored.
func (m *Matcher) Calculate(ctx context.Context, ai engine.Engine, profiles ProfileReader, users []string) error {
	m.calc.Lock()
	defer m.calc.Unlock()

	targets := m.known(users)
	summaries := make(map[string]string, len(targets))
	for _, u := range targets {
		summaries[u] = profiles.Read(u)
	}

	for i, u := range targets {
		for _, v := range targets[i+1:] {
			if m.IsOfficial(u, v) {
				continue
			}
			reply, err := ai.Complete(ctx, m.composer.Compatibility(summaries[u], summaries[v]))
			if err != nil {
				return fmt.Errorf("scoring %s and %s: %w", u, v, err)
			}
			score := ParseScore(reply)
			m.logger.Debug("compatibility scored", "a", u, "b", v, "score", score)

			m.mu.Lock()
			m.scores[u][v] = score
			m.scores[v][u] = score
			m.mu.Unlock()
		}
	}
	return m.saveScores()
}

// Score returns the score between a and b.
func (m *Matcher) Score(a, b string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.official[pairKey(a, b)] {
		return OfficialScore
	}
	return m.scores[a][b]
}

// TopMatches returns up to n partners of user by descending score. Ties keep
// the configured user order.
func (m *Matcher) TopMatches(user string, n int) []Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.scores[user]
	if !ok || n <= 0 {
		return nil
	}
	matches := make([]Match, 0, len(row))
	for _, v := range m.users {
		if v == user {
			continue
		}
		s := row[v]
		if m.official[pairKey(user, v)] {
			s = OfficialScore
		}
		matches = append(matches, Match{User: v, Score: s})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// Matrix returns a copy of the full matrix as Score reports it.
func (m *Matcher) Matrix() map[string]map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]float64, len(m.scores))
	for u, row := range m.scores {
		cp := make(map[string]float64, len(row))
		for v, s := range row {
			if m.official[pairKey(u, v)] {
				s = OfficialScore
			}
			cp[v] = s
		}
		out[u] = cp
	}
	return out
}

// Clear resets every pairwise score to 0, forgets official pairs and
// persists the result.
func (m *Matcher) Clear() error {
	m.calc.Lock()
	defer m.calc.Unlock()

	m.mu.Lock()
	m.scores = m.zeroMatrix()
	m.official = make(map[[2]string]bool)
	m.mu.Unlock()

	if err := m.store.SaveOfficial(nil); err != nil {
		return fmt.Errorf("saving official matches: %w", err)
	}
	return m.saveScores()
}

// DeclareOfficialMatch marks a and b as officially matched.
func (m *Matcher) DeclareOfficialMatch(a, b string) error {
	if a == b {
		return fmt.Errorf("cannot match %s with itself", a)
	}
	m.mu.Lock()
	m.official[pairKey(a, b)] = true
	pairs := m.officialPairs()
	m.mu.Unlock()

	if err := m.store.SaveOfficial(pairs); err != nil {
		return fmt.Errorf("saving official matches: %w", err)
	}
	return nil
}

// IsOfficial reports whether a and b are officially matched.
func (m *Matcher) IsOfficial(a, b string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.official[pairKey(a, b)]
}

// HasOfficialMatch reports whether user is part of any official pair.
func (m *Matcher) HasOfficialMatch(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for p := range m.official {
		if p[0] == user || p[1] == user {
			return true
		}
	}
	return false
}

// OfficialPairs returns every official pair, sorted.
func (m *Matcher) OfficialPairs() [][2]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.officialPairs()
}

func (m *Matcher) officialPairs() [][2]string {
	pairs := make([][2]string, 0, len(m.official))
	for p := range m.official {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

func (m *Matcher) saveScores() error {
	m.mu.RLock()
	cp := make(map[string]map[string]float64, len(m.scores))
	for u, row := range m.scores {
		r := make(map[string]float64, len(row))
		for v, s := range row {
			r[v] = s
		}
		cp[u] = r
	}
	m.mu.RUnlock()

	if err := m.store.SaveScores(cp); err != nil {
		return fmt.Errorf("saving match matrix: %w", err)
	}
	return nil
}

func (m *Matcher) known(users []string) []string {
	if users == nil {
		return m.Users()
	}
	want := make(map[string]bool, len(users))
	for _, u := range users {
		want[u] = true
	}
	out := make([]string, 0, len(users))
	for _, u := range m.users {
		if want[u] {
			out = append(out, u)
		}
	}
	return out
}

func (m *Matcher) zeroMatrix() map[string]map[string]float64 {
	scores := make(map[string]map[string]float64, len(m.users))
	for _, u := range m.users {
		row := make(map[string]float64, len(m.users)-1)
		for _, v := range m.users {
			if v != u {
				row[v] = 0
			}
		}
		scores[u] = row
	}
	return scores
}

var scoreRe = regexp.MustCompile(`0(?:\.\d+)?|1(?:\.0+)?`)

// ParseScore extracts the first score-looking number in [0,1] from a judge
// reply. A reply without one scores 0.
func ParseScore(reply string) float64 {
	tok := scoreRe.FindString(reply)
	if tok == "" {
		return 0
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0
	}
	return v
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
