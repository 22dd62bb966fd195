package composer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/talkmatch/internal/engine"
)

func TestProfileUpdate_EmbedsExistingAndMessages(t *testing.T) {
	c := Default()
	msgs := c.ProfileUpdate("  existing profile \n", "second message", []string{"kids", "job"})

	if len(msgs) != 1 || msgs[0].Role != engine.RoleUser {
		t.Fatalf("messages = %+v, want one user message", msgs)
	}
	prompt := msgs[0].Content
	for _, want := range []string{
		"<USER_INFO>existing profile</USER_INFO>",
		"<CHAT_MESSAGES>second message</CHAT_MESSAGES>",
		"kids, job",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCompatibility_NoInformationForEmptyProfiles(t *testing.T) {
	c := Default()
	prompt := c.Compatibility("", "likes hiking")[0].Content

	if !strings.Contains(prompt, "Person A profile:\nNo information.") {
		t.Errorf("empty profile not replaced:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Person B profile:\nlikes hiking") {
		t.Errorf("profile B missing:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, "Rate the romantic compatibility") {
		t.Errorf("unexpected prompt start:\n%s", prompt)
	}
}

func TestReadiness_ListsObjectives(t *testing.T) {
	c := Default()
	prompt := c.Readiness("likes dogs", []string{"age", "languages"})[0].Content
	if !strings.Contains(prompt, "age, languages") || !strings.Contains(prompt, "likes dogs") {
		t.Errorf("prompt = %s", prompt)
	}
}

func TestDirectives(t *testing.T) {
	c := Default()

	acting := c.ActingDirective("Bella", "reads a lot")
	if acting.Role != engine.RoleSystem || !strings.Contains(acting.Content, "Bella") || !strings.Contains(acting.Content, "reads a lot") {
		t.Errorf("acting directive = %+v", acting)
	}

	linking := c.LinkingDirective("Bella", "pizza?")
	if !strings.Contains(linking.Content, `"pizza?"`) {
		t.Errorf("linking directive = %q", linking.Content)
	}

	collect, ok := c.CollectInfoDirective([]string{"kids", "age"})
	if !ok || !strings.Contains(collect.Content, "kids, age") {
		t.Errorf("collect directive = %q, %v", collect.Content, ok)
	}
	if _, ok := c.CollectInfoDirective(nil); ok {
		t.Error("expected no directive when nothing is missing")
	}
}

func TestGreetingAndPreamble(t *testing.T) {
	c := Default()
	if g := c.Greeting("Alex"); !strings.Contains(g, "Alex") || strings.Contains(g, "{name}") {
		t.Errorf("greeting = %q", g)
	}
	if p := c.Preamble(); p.Role != engine.RoleSystem || p.Content == "" {
		t.Errorf("preamble = %+v", p)
	}
}

func TestAugment_DoesNotMutateTranscript(t *testing.T) {
	transcript := make([]engine.Message, 2, 8)
	transcript[0] = engine.System("role")
	transcript[1] = engine.User("hi")

	out := Augment(transcript, engine.System("directive"))
	if len(out) != 3 || out[2].Content != "directive" {
		t.Fatalf("augmented = %+v", out)
	}

	out[0].Content = "changed"
	if transcript[0].Content != "role" {
		t.Error("Augment shares backing array with the transcript")
	}
	if got := transcript[:3][2]; got.Content == "directive" {
		t.Error("directive leaked into the transcript's spare capacity")
	}
}

func TestLibrary_OverrideAndFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greeting.txt"), []byte("Yo {name}!\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readiness.txt"), []byte("   \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := NewLibrary(dir)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	c := New(lib)

	if got := c.Greeting("Nadia"); got != "Yo Nadia!" {
		t.Errorf("greeting = %q, want override", got)
	}
	if !strings.Contains(lib.Text(Readiness), "0 to 100") {
		t.Errorf("blank override should fall back to default, got %q", lib.Text(Readiness))
	}
	if lib.Text("unknown") != "" {
		t.Error("unknown prompt should be empty")
	}
}

func TestLibrary_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	lib, err := NewLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx, ready) }()
	<-ready

	if err := os.WriteFile(filepath.Join(dir, "greeting.txt"), []byte("Howdy {name}"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for lib.Text(Greeting) != "Howdy {name}" {
		if time.Now().After(deadline) {
			t.Fatalf("greeting not reloaded, got %q", lib.Text(Greeting))
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}
