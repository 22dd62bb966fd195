package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(FilePath()), key, value)
}

// UnsetKey removes a config key from the config file so its default applies.
func UnsetKey(key string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	return newFileBackend(FilePath()).Delete(s.key)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	switch s.typ {
	case kString:
		return b.SetString(key, value)
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	case kBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		return b.SetString(key, strconv.FormatBool(v))
	case kFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %w", key, err)
		}
		return b.SetString(key, strconv.FormatFloat(f, 'f', -1, 64))
	}
	return fmt.Errorf("unsupported type for %s", key)
}

func lookup(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
