package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/talkmatch/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	tables := []string{"profiles", "transcripts", "match_scores", "official_matches", "message_counts"}
	for _, tbl := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tbl).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", tbl, err)
		}
		if count != 1 {
			t.Errorf("table %q not found in sqlite_master", tbl)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetProfile("Alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != "" {
		t.Errorf("GetProfile on empty store = %q, want empty", got)
	}

	if err := s.SetProfile("Alice", "Likes hiking."); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	if err := s.SetProfile("Alice", "Likes hiking and pizza."); err != nil {
		t.Fatalf("SetProfile overwrite: %v", err)
	}

	got, err = s.GetProfile("Alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != "Likes hiking and pizza." {
		t.Errorf("GetProfile = %q, want overwritten summary", got)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := openTestStore(t)

	first := []engine.Message{
		engine.System("preamble"),
		engine.Assistant("Hi Alice"),
		engine.User("hello"),
	}
	if err := s.SaveTranscript("Alice", first); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	shorter := first[:2]
	if err := s.SaveTranscript("Alice", shorter); err != nil {
		t.Fatalf("SaveTranscript replace: %v", err)
	}

	got, err := s.LoadTranscript("Alice")
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if diff := cmp.Diff(shorter, got); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}

	other, err := s.LoadTranscript("Bob")
	if err != nil {
		t.Fatalf("LoadTranscript(Bob): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unknown session has %d messages, want 0", len(other))
	}
}

func TestScoresRoundTrip(t *testing.T) {
	s := openTestStore(t)

	scores := map[string]map[string]float64{
		"Alice": {"Bob": 0.9, "Charlie": 0.3},
		"Bob":   {"Alice": 0.9},
	}
	if err := s.SaveScores(scores); err != nil {
		t.Fatalf("SaveScores: %v", err)
	}

	got, err := s.LoadScores()
	if err != nil {
		t.Fatalf("LoadScores: %v", err)
	}
	if diff := cmp.Diff(scores, got); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}

	if err := s.SaveScores(map[string]map[string]float64{}); err != nil {
		t.Fatalf("SaveScores empty: %v", err)
	}
	got, err = s.LoadScores()
	if err != nil {
		t.Fatalf("LoadScores: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("scores after clear = %v, want empty", got)
	}
}

func TestOfficialRoundTrip(t *testing.T) {
	s := openTestStore(t)

	pairs := [][2]string{{"Alice", "Bob"}, {"Carol", "Dave"}}
	if err := s.SaveOfficial(pairs); err != nil {
		t.Fatalf("SaveOfficial: %v", err)
	}

	got, err := s.LoadOfficial()
	if err != nil {
		t.Fatalf("LoadOfficial: %v", err)
	}
	if diff := cmp.Diff(pairs, got); diff != "" {
		t.Errorf("official mismatch (-want +got):\n%s", diff)
	}
}

func TestOfficialDuplicatesCollapse(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveOfficial([][2]string{{"Alice", "Bob"}, {"Alice", "Bob"}}); err != nil {
		t.Fatalf("SaveOfficial: %v", err)
	}
	got, err := s.LoadOfficial()
	if err != nil {
		t.Fatalf("LoadOfficial: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d pairs, want 1", len(got))
	}
}

func TestCountsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	counts := map[string]int{"Alice|Bob": 3, "Bob|Carol": 1}
	if err := s.SaveCounts(counts); err != nil {
		t.Fatalf("SaveCounts: %v", err)
	}

	got, err := s.LoadCounts()
	if err != nil {
		t.Fatalf("LoadCounts: %v", err)
	}
	if diff := cmp.Diff(counts, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.SetProfile("Alice", "Loves dogs."); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	if err := s1.SaveCounts(map[string]int{"Alice|Bob": 2}); err != nil {
		t.Fatalf("SaveCounts: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetProfile("Alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != "Loves dogs." {
		t.Errorf("GetProfile after reopen = %q", got)
	}
	counts, err := s2.LoadCounts()
	if err != nil {
		t.Fatalf("LoadCounts: %v", err)
	}
	if counts["Alice|Bob"] != 2 {
		t.Errorf("count after reopen = %d, want 2", counts["Alice|Bob"])
	}
}
