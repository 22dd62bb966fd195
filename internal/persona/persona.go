// Package persona defines the conversational participants of the demo and
// loads them from YAML or TOML files.
package persona

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Persona is a named participant with a personality and a dating goal.
type Persona struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Personality string `json:"personality" yaml:"personality" toml:"personality"`
	Goal        string `json:"goal" yaml:"goal" toml:"goal"`
}

// SystemPrompt is the instruction used when the AI speaks as this persona.
func (p Persona) SystemPrompt() string {
	return fmt.Sprintf(
		"You are %s, %s. You are looking for %s. Respond in first person and keep messages brief. "+
			"If you don't want to answer, reply with an empty message.",
		p.Name, p.Personality, p.Goal,
	)
}

// Defaults are the six demo personas.
var Defaults = []Persona{
	{Name: "Adventure Alex", Personality: "a thrill-seeking extrovert", Goal: "someone to travel the world with"},
	{Name: "Bookish Bella", Personality: "a thoughtful book lover", Goal: "a deep intellectual connection"},
	{Name: "Creative Chris", Personality: "an artistic soul", Goal: "a muse to inspire new creations"},
	{Name: "Fitness Fiona", Personality: "a health-focused trainer", Goal: "a partner to hit the gym with"},
	{Name: "Entrepreneur Ethan", Personality: "an ambitious startup founder", Goal: "someone to build a life and business with"},
	{Name: "Nature Nadia", Personality: "an eco-conscious hiker", Goal: "a companion who loves the outdoors"},
}

type document struct {
	Personas []Persona `yaml:"personas" toml:"personas"`
}

// Load reads personas from path. The format follows the extension: .yaml,
// .yml or .toml. An empty path returns Defaults.
func Load(path string) ([]Persona, error) {
	if strings.TrimSpace(path) == "" {
		return append([]Persona(nil), Defaults...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	var list []Persona
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		list, err = ParseYAML(data)
	case ".toml":
		list, err = ParseTOML(data)
	default:
		return nil, fmt.Errorf("persona: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("persona: %s: %w", path, err)
	}
	return list, nil
}

// ParseYAML decodes a `personas:` list.
func ParseYAML(data []byte) ([]Persona, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("persona file is empty")
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return validate(doc.Personas)
}

// ParseTOML decodes a `[[personas]]` array.
func ParseTOML(data []byte) ([]Persona, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("persona file is empty")
	}
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	return validate(doc.Personas)
}

func validate(list []Persona) ([]Persona, error) {
	if len(list) < 2 {
		return nil, fmt.Errorf("need at least two personas, got %d", len(list))
	}
	seen := make(map[string]bool, len(list))
	out := make([]Persona, 0, len(list))
	for i, p := range list {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("persona %d has no name", i)
		}
		if strings.Contains(p.Name, "|") {
			return nil, fmt.Errorf("persona name %q must not contain '|'", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate persona %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

// Names returns the persona names in order.
func Names(list []Persona) []string {
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}

// Find returns the persona called name.
func Find(list []Persona, name string) (Persona, bool) {
	for _, p := range list {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}
