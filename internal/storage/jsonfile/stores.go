package jsonfile

import (
	"path/filepath"
	"strings"

	"github.com/kalambet/talkmatch/internal/engine"
)

// Store groups every document under one data directory.
type Store struct {
	dir      string
	profiles *Document[map[string]string]
	matrix   *Document[map[string]map[string]float64]
	official *Document[[][2]string]
	counts   *Document[map[string]int]
}

// Open returns a Store rooted at dir. Nothing is read or created until used.
func Open(dir string) *Store {
	return &Store{
		dir:      dir,
		profiles: NewDocument[map[string]string](filepath.Join(dir, "profiles.json")),
		matrix:   NewDocument[map[string]map[string]float64](filepath.Join(dir, "match_matrix.json")),
		official: NewDocument[[][2]string](filepath.Join(dir, "official_matches.json")),
		counts:   NewDocument[map[string]int](filepath.Join(dir, "message_counts.json")),
	}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Close is a no-op; it lets Store satisfy the same lifecycle as the SQLite store.
func (s *Store) Close() error { return nil }

// --- Profiles ---

func (s *Store) GetProfile(name string) (string, error) {
	return s.profiles.Load()[name], nil
}

func (s *Store) SetProfile(name, summary string) error {
	return s.profiles.Update(func(m map[string]string) map[string]string {
		if m == nil {
			m = make(map[string]string)
		}
		m[name] = summary
		return m
	})
}

// --- Transcripts ---

func (s *Store) transcript(name string) *Document[[]engine.Message] {
	return NewDocument[[]engine.Message](filepath.Join(s.dir, "chats", safeName(name)+".json"))
}

func (s *Store) LoadTranscript(name string) ([]engine.Message, error) {
	return s.transcript(name).Load(), nil
}

func (s *Store) SaveTranscript(name string, messages []engine.Message) error {
	if messages == nil {
		messages = []engine.Message{}
	}
	return s.transcript(name).Save(messages)
}

// --- Match matrix ---

func (s *Store) LoadScores() (map[string]map[string]float64, error) {
	return s.matrix.Load(), nil
}

func (s *Store) SaveScores(scores map[string]map[string]float64) error {
	return s.matrix.Save(scores)
}

func (s *Store) LoadOfficial() ([][2]string, error) {
	return s.official.Load(), nil
}

func (s *Store) SaveOfficial(pairs [][2]string) error {
	if pairs == nil {
		pairs = [][2]string{}
	}
	return s.official.Save(pairs)
}

// --- Message counts ---

func (s *Store) LoadCounts() (map[string]int, error) {
	return s.counts.Load(), nil
}

func (s *Store) SaveCounts(counts map[string]int) error {
	if counts == nil {
		counts = map[string]int{}
	}
	return s.counts.Save(counts)
}

// safeName keeps persona names usable as file names.
func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
}
