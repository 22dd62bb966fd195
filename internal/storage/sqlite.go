package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/talkmatch/internal/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding profiles, transcripts, match scores
// and message counts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "talkmatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

// GetProfile returns the summary for name, or "" if none is stored.
func (s *Store) GetProfile(name string) (string, error) {
	var summary string
	err := s.db.QueryRow("SELECT summary FROM profiles WHERE name = ?", name).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return summary, err
}

// SetProfile replaces the summary for name.
func (s *Store) SetProfile(name, summary string) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (name, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		name, summary, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// --- Transcripts ---

// LoadTranscript returns the messages of session in order.
func (s *Store) LoadTranscript(session string) ([]engine.Message, error) {
	rows, err := s.db.Query("SELECT role, content FROM transcripts WHERE session = ? ORDER BY seq ASC", session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []engine.Message
	for rows.Next() {
		var m engine.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SaveTranscript replaces the stored transcript of session.
func (s *Store) SaveTranscript(session string, messages []engine.Message) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM transcripts WHERE session = ?", session); err != nil {
			return err
		}
		stmt, err := tx.Prepare("INSERT INTO transcripts (session, seq, role, content) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, m := range messages {
			if _, err := stmt.Exec(session, i, m.Role, m.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Match matrix ---

// LoadScores returns every stored score keyed by user then other user.
func (s *Store) LoadScores() (map[string]map[string]float64, error) {
	rows, err := s.db.Query("SELECT user, other, score FROM match_scores")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[string]map[string]float64)
	for rows.Next() {
		var user, other string
		var score float64
		if err := rows.Scan(&user, &other, &score); err != nil {
			return nil, err
		}
		if scores[user] == nil {
			scores[user] = make(map[string]float64)
		}
		scores[user][other] = score
	}
	return scores, rows.Err()
}

// SaveScores replaces the whole score matrix.
func (s *Store) SaveScores(scores map[string]map[string]float64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM match_scores"); err != nil {
			return err
		}
		stmt, err := tx.Prepare("INSERT INTO match_scores (user, other, score) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, user := range sortedKeys(scores) {
			for other, score := range scores[user] {
				if _, err := stmt.Exec(user, other, score); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// LoadOfficial returns every officially matched pair in declaration order.
func (s *Store) LoadOfficial() ([][2]string, error) {
	rows, err := s.db.Query("SELECT a, b FROM official_matches ORDER BY declared_at ASC, rowid ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// SaveOfficial replaces the set of official pairs.
func (s *Store) SaveOfficial(pairs [][2]string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM official_matches"); err != nil {
			return err
		}
		for _, p := range pairs {
			if _, err := tx.Exec("INSERT OR IGNORE INTO official_matches (a, b, declared_at) VALUES (?, ?, ?)", p[0], p[1], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Message counts ---

// LoadCounts returns every pair count keyed by canonical pair key.
func (s *Store) LoadCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT pair_key, count FROM message_counts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		counts[k] = n
	}
	return counts, rows.Err()
}

// SaveCounts replaces every pair count.
func (s *Store) SaveCounts(counts map[string]int) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM message_counts"); err != nil {
			return err
		}
		for _, k := range sortedKeys(counts) {
			if _, err := tx.Exec("INSERT INTO message_counts (pair_key, count) VALUES (?, ?)", k, counts[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
