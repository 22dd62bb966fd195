package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	list, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Adventure Alex", "Bookish Bella", "Creative Chris",
		"Fitness Fiona", "Entrepreneur Ethan", "Nature Nadia",
	}, Names(list))

	list[0].Name = "changed"
	assert.Equal(t, "Adventure Alex", Defaults[0].Name)
}

func TestSystemPrompt(t *testing.T) {
	p, ok := Find(Defaults, "Bookish Bella")
	require.True(t, ok)
	got := p.SystemPrompt()
	assert.Contains(t, got, "You are Bookish Bella, a thoughtful book lover. You are looking for a deep intellectual connection.")
	assert.Contains(t, got, "Respond in first person and keep messages brief.")
	assert.Contains(t, got, "empty message")
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.yaml")
	data := `personas:
  - name: Ann
    personality: a chess player
    goal: a rival
  - name: Ben
    personality: a baker
    goal: someone who likes bread
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	list, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Persona{
		{Name: "Ann", Personality: "a chess player", Goal: "a rival"},
		{Name: "Ben", Personality: "a baker", Goal: "someone who likes bread"},
	}, list)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.toml")
	data := `[[personas]]
name = "Ann"
personality = "a chess player"
goal = "a rival"

[[personas]]
name = "Ben"
personality = "a baker"
goal = "someone who likes bread"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	list, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Ben"}, Names(list))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	tests := map[string]string{
		"missing":   filepath.Join(dir, "nope.yaml"),
		"extension": write("people.json", `{}`),
		"empty":     write("empty.yaml", "  \n"),
		"one":       write("one.yaml", "personas:\n  - name: Ann\n"),
		"duplicate": write("dup.yaml", "personas:\n  - name: Ann\n  - name: Ann\n"),
		"noname":    write("noname.toml", "[[personas]]\nname = \"Ann\"\n[[personas]]\ngoal = \"x\"\n"),
		"pipe":      write("pipe.yaml", "personas:\n  - name: A|B\n  - name: C\n"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
