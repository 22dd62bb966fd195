package composer

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

//go:embed prompts/*.txt
var defaultPrompts embed.FS

// Prompt names. Each maps to <name>.txt in the embedded defaults and in the
// optional override directory.
const (
	AmbassadorRole = "ambassador_role"
	Greeting       = "greeting"
	BuildProfile   = "build_profile"
	CollectInfo    = "collect_info"
	Acting         = "acting"
	Linking        = "linking"
	Readiness      = "readiness"
	Compatibility  = "compatibility"
)

var promptNames = []string{
	AmbassadorRole, Greeting, BuildProfile, CollectInfo,
	Acting, Linking, Readiness, Compatibility,
}

// Library holds the prompt texts. Files in the override directory replace
// the embedded defaults; a missing or unreadable override falls back to the
// default.
type Library struct {
	dir string

	mu    sync.RWMutex
	texts map[string]string
}

// NewLibrary loads the embedded prompts and applies overrides from dir.
// An empty dir uses the defaults only.
func NewLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads every prompt.
func (l *Library) Reload() error {
	texts := make(map[string]string, len(promptNames))
	for _, name := range promptNames {
		b, err := defaultPrompts.ReadFile("prompts/" + name + ".txt")
		if err != nil {
			return fmt.Errorf("reading default prompt %s: %w", name, err)
		}
		texts[name] = strings.TrimSpace(string(b))

		if l.dir == "" {
			continue
		}
		override, err := os.ReadFile(filepath.Join(l.dir, name+".txt"))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("could not read prompt override, using default", "prompt", name, "error", err)
			}
			continue
		}
		if t := strings.TrimSpace(string(override)); t != "" {
			texts[name] = t
		}
	}

	l.mu.Lock()
	l.texts = texts
	l.mu.Unlock()
	return nil
}

// Text returns the raw template for name, or "" if unknown.
func (l *Library) Text(name string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.texts[name]
}

// Watch reloads the library whenever a file in the override directory
// changes. It blocks until ctx is cancelled. ready, if non-nil, is closed
// once the watcher is registered.
func (l *Library) Watch(ctx context.Context, ready chan<- struct{}) error {
	if l.dir == "" {
		if ready != nil {
			close(ready)
		}
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating prompt watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(l.dir); err != nil {
		return fmt.Errorf("watching %s: %w", l.dir, err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".txt") {
				continue
			}
			if err := l.Reload(); err != nil {
				slog.Warn("prompt reload failed", "error", err)
				continue
			}
			slog.Debug("prompts reloaded", "file", ev.Name, "op", ev.Op.String())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("prompt watcher error", "error", err)
		}
	}
}
