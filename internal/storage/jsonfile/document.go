// Package jsonfile persists talkmatch state as one JSON document per concern
// under a data directory:
//
//	profiles.json         {"name": "summary"}
//	chats/<name>.json     [{"role": "...", "content": "..."}]
//	match_matrix.json     {"a": {"b": 0.9}}
//	official_matches.json [["a", "b"]]
//	message_counts.json   {"a|b": 3}
//
// Absent or corrupt documents load as empty values. Every save rewrites the
// whole document atomically.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode    = 0o600
	dirMode     = 0o700
	tempPattern = ".talkmatch-*.json.tmp"
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// lockForPath returns the process-wide lock for path so that every Document
// pointing at the same file serializes its writes.
func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// Document is a JSON file holding a single value of type T.
type Document[T any] struct {
	path string
	mu   *sync.RWMutex
}

// NewDocument returns a Document stored at path.
func NewDocument[T any](path string) *Document[T] {
	if abs, err := filepath.Abs(path); err == nil {
		path = filepath.Clean(abs)
	}
	return &Document[T]{path: path, mu: lockForPath(path)}
}

// Path returns the document's file path.
func (d *Document[T]) Path() string { return d.path }

// Load decodes the document. A missing file yields the zero value; a corrupt
// or unreadable one is logged and also yields the zero value.
func (d *Document[T]) Load() T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.load()
}

func (d *Document[T]) load() T {
	var v T
	data, err := os.ReadFile(d.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not read document, starting fresh", "path", d.path, "error", err)
		}
		return v
	}
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("corrupt document, starting fresh", "path", d.path, "error", err)
		var zero T
		return zero
	}
	return v
}

// Save writes v atomically: it is encoded to a temp file in the same
// directory which then replaces the document.
func (d *Document[T]) Save(v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save(v)
}

// Update loads the document, applies fn and saves the result under a single
// write lock.
func (d *Document[T]) Update(fn func(v T) T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save(fn(d.load()))
}

func (d *Document[T]) save(v T) error {
	if err := os.MkdirAll(filepath.Dir(d.path), dirMode); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(d.path), err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(d.path), tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempName, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(d.path), err)
	}
	cleanup = false
	return nil
}
