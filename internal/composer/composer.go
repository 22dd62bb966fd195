package composer

import (
	"strings"

	"github.com/kalambet/talkmatch/internal/engine"
)

// NoInformation stands in for an empty profile in judge prompts.
const NoInformation = "No information."

// Composer fills prompt templates and assembles message lists for the AI
// service.
type Composer struct {
	lib *Library
}

// New creates a Composer over lib.
func New(lib *Library) *Composer {
	return &Composer{lib: lib}
}

// Default creates a Composer over the embedded prompts only.
func Default() *Composer {
	lib, err := NewLibrary("")
	if err != nil {
		// embedded prompts are always present
		panic(err)
	}
	return New(lib)
}

// Library returns the underlying prompt library.
func (c *Composer) Library() *Library { return c.lib }

func (c *Composer) fill(name string, kv ...string) string {
	return strings.NewReplacer(kv...).Replace(c.lib.Text(name))
}

// Preamble is the fixed system message that opens every session transcript.
func (c *Composer) Preamble() engine.Message {
	return engine.System(c.lib.Text(AmbassadorRole))
}

// Greeting is the first assistant message of a fresh session for name.
func (c *Composer) Greeting(name string) string {
	return c.fill(Greeting, "{name}", name)
}

// ProfileUpdate builds the request that rewrites a user's profile from the
// existing summary and newly received text.
func (c *Composer) ProfileUpdate(existing, messages string, objectives []string) []engine.Message {
	prompt := c.fill(BuildProfile,
		"{info}", strings.TrimSpace(existing),
		"{messages}", messages,
		"{objectives}", strings.Join(objectives, ", "),
	)
	return []engine.Message{engine.User(prompt)}
}

// Readiness builds the judge request scoring profile coverage of objectives
// on a 0-100 scale.
func (c *Composer) Readiness(profile string, objectives []string) []engine.Message {
	prompt := c.fill(Readiness,
		"{profile}", orNoInformation(profile),
		"{objectives}", strings.Join(objectives, ", "),
	)
	return []engine.Message{engine.User(prompt)}
}

// Compatibility builds the judge request scoring two profiles on a 0-1 scale.
func (c *Composer) Compatibility(a, b string) []engine.Message {
	prompt := c.fill(Compatibility,
		"{a}", orNoInformation(a),
		"{b}", orNoInformation(b),
	)
	return []engine.Message{engine.User(prompt)}
}

// ActingDirective tells the model to role-play as persona, styled after
// persona's stored profile.
func (c *Composer) ActingDirective(persona, profile string) engine.Message {
	return engine.System(c.fill(Acting,
		"{persona}", persona,
		"{profile}", orNoInformation(profile),
	))
}

// LinkingDirective injects the counterpart's latest message so both sides
// converge on the same topic.
func (c *Composer) LinkingDirective(persona, context string) engine.Message {
	return engine.System(c.fill(Linking,
		"{persona}", persona,
		"{context}", context,
	))
}

// CollectInfoDirective asks the model to elicit the missing objectives. It
// returns false when nothing is missing.
func (c *Composer) CollectInfoDirective(missing []string) (engine.Message, bool) {
	if len(missing) == 0 {
		return engine.Message{}, false
	}
	return engine.System(c.fill(CollectInfo, "{missing}", strings.Join(missing, ", "))), true
}

// Augment returns a copy of transcript with directive appended. The
// transcript itself is not modified.
func Augment(transcript []engine.Message, directive engine.Message) []engine.Message {
	out := make([]engine.Message, 0, len(transcript)+1)
	out = append(out, transcript...)
	return append(out, directive)
}

func orNoInformation(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoInformation
	}
	return s
}
