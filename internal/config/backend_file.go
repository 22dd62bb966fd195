package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const configType = "toml"

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "talkmatch-data"
		}
	}
	return filepath.Join(dir, "talkmatch")
}

// FilePath returns the config file location:
// $XDG_CONFIG_HOME/talkmatch/config.toml, falling back to ~/.config.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "talkmatch", "config.toml")
}

// fileBackend keeps config in a TOML file read and written through viper.
type fileBackend struct {
	path string
	v    *viper.Viper
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, v: newViper()}
	b.v.SetConfigFile(path)
	if err := b.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not read config file, using default values", "path", path, "error", err)
		}
	}
	return b
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType(configType)
	return v
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := b.v.WriteConfigAs(b.path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return os.Chmod(b.path, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	if !b.v.IsSet(key) {
		return "", false, nil
	}
	return b.v.GetString(key), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	if !b.v.IsSet(key) {
		return 0, false, nil
	}
	switch val := b.v.Get(key).(type) {
	case int:
		return val, true, nil
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.v.Set(key, val)
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.v.Set(key, val)
	return b.save()
}

// Delete removes key. viper cannot unset a key, so the remaining settings
// are copied into a fresh instance.
func (b *fileBackend) Delete(key string) error {
	all := b.v.AllSettings()
	deleteNested(all, strings.Split(strings.ToLower(key), "."))

	nv := newViper()
	if err := nv.MergeConfigMap(all); err != nil {
		return fmt.Errorf("rebuilding config: %w", err)
	}
	b.v = nv
	return b.save()
}

func deleteNested(m map[string]any, path []string) {
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		return
	}
	deleteNested(child, path[1:])
	if len(child) == 0 {
		delete(m, path[0])
	}
}
