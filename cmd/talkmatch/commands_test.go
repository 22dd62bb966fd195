package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/talkmatch/internal/session"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if resp == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"unknown persona: \"Zed\"","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

// execute runs the root command against ts and returns stdout.
func execute(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()
	if ts != nil {
		old := newAPIClient
		newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
		t.Cleanup(func() { newAPIClient = old })
	}
	oldColor := noColor
	t.Cleanup(func() { noColor = oldColor })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// isolateConfig points the config file at a temp dir and clears overrides.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	for _, env := range []string{"TALKMATCH_PERSONAS_FILE", "TALKMATCH_SERVER_PORT", "TALKMATCH_AI_PROVIDER"} {
		t.Setenv(env, "")
	}
	return dir
}

var ctx = context.Background()

const boardJSON = `[
  {"name":"Alice","state":"acting","status":"acting as Bob","matches":[{"user":"Bob","score":0.9,"messages":2}]},
  {"name":"Bob","state":"matched","status":"matched with Alice","matches":[{"user":"Alice","score":1,"messages":0,"official":true}]}
]`

func TestAPIClient_PostAndDecode(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions/Bookish Bella/messages": `{"session":"Bookish Bella","text":"tell me more","display":"tell me more","status":"collecting info","state":"collecting_info"}`,
	})

	resp, err := ts.client().post(ctx, sessionPath("Bookish Bella", "messages"), map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reply session.Reply
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if reply.Text != "tell me more" {
		t.Errorf("text = %q", reply.Text)
	}

	r := ts.requests[0]
	if r.Path != "/sessions/Bookish%20Bella/messages" {
		t.Errorf("path = %q, want escaped name", r.Path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "hi" {
		t.Errorf("body.text = %q", body["text"])
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/profiles/Zed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if want := `server returned 404: unknown persona: "Zed"`; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestAPIClient_NotReachable(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestSendCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions/Alice/messages": `{"session":"Alice","text":"","display":"(no reply)","status":"acting as Bob","state":"acting"}`,
	})

	out, err := execute(t, ts, "send", "Alice", "I", "love", "pizza")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Ambassador [acting as Bob]: (no reply)\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if got := ts.requests[0].Body; got != `{"text":"I love pizza"}` {
		t.Errorf("body = %s", got)
	}
}

func TestSendCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, nil, "send", "Alice")
	if err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestAutoCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions/Bob/auto": `{"message":"I cook","reply":{"session":"Bob","text":"nice","display":"nice","status":"collecting info","state":"collecting_info"}}`,
	})

	out, err := execute(t, ts, "auto", "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Bob: I cook\nAmbassador [collecting info]: nice\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestScriptCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /sessions/Alice/script": "",
	})

	if _, err := execute(t, ts, "script", "Alice", "one", "two"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Body; got != `{"replies":["one","two"]}` {
		t.Errorf("body = %s", got)
	}
}

func TestTranscriptCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions/Alice/messages": `{"session":"Alice","messages":[
			{"role":"system","content":"hidden"},
			{"role":"assistant","content":"Hi Alice"},
			{"role":"user","content":"hello"},
			{"role":"assistant","content":""}]}`,
	})

	out, err := execute(t, ts, "transcript", "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Ambassador: Hi Alice\nAlice: hello\nAmbassador: (no reply)\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestCalculateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /matches/calculate": boardJSON,
	})

	out, err := execute(t, ts, "calculate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Match Board", "Alice [acting as Bob]", "Bob: 0.90 (2 msgs)", "Alice: 1.00 ♥"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestClearCommand_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /matches": boardJSON,
	})

	if _, err := execute(t, ts, "clear"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Fatalf("clear without --confirm sent %d requests", len(ts.requests))
	}

	if _, err := execute(t, ts, "clear", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clearCmd.Flags().Set("confirm", "false")
	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodDelete {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestMatchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /matches/official": boardJSON,
	})

	if _, err := execute(t, ts, "match", "Alice", "Bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Body; got != `{"a":"Alice","b":"Bob"}` {
		t.Errorf("body = %s", got)
	}

	if _, err := execute(t, ts, "match", "Alice", "Alice"); err == nil {
		t.Error("expected error for self match")
	}
	if len(ts.requests) != 1 {
		t.Errorf("self match should not reach the server")
	}
}

func TestProfileCommand_UnknownPersona(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := execute(t, ts, "profile", "Zed")
	if err == nil || !strings.Contains(err.Error(), "unknown persona") {
		t.Errorf("err = %v, want unknown persona", err)
	}
}

func TestStatusCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health":  `{"status":"ok"}`,
		"GET /matches": boardJSON,
	})

	out, err := execute(t, ts, "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Server: running at "+ts.server.URL) {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Bob [matched with Alice]") {
		t.Errorf("output missing board:\n%s", out)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.server.Close()

	out, err := execute(t, ts, "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Server: stopped") {
		t.Errorf("output = %q", out)
	}
}

func TestRenderBoard_Empty(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	out := renderBoard(nil, newBoardStyles())
	if !strings.Contains(out, "No personas configured.") {
		t.Errorf("output = %q", out)
	}
}

func TestPersonasCommand_Defaults(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, nil, "personas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 6 {
		t.Errorf("listed %d personas, want 6:\n%s", n, out)
	}
	if !strings.Contains(out, "Bookish Bella  a thoughtful book lover, looking for a deep intellectual connection") {
		t.Errorf("output = %q", out)
	}
}

func TestPersonasCommand_File(t *testing.T) {
	dir := isolateConfig(t)
	path := filepath.Join(dir, "people.yaml")
	data := "personas:\n  - name: Ann\n    personality: a baker\n    goal: a taster\n  - name: Ben\n    personality: a taster\n    goal: a baker\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TALKMATCH_PERSONAS_FILE", path)

	out, err := execute(t, nil, "personas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Ann  a baker, looking for a taster\nBen  a taster, looking for a baker\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestConfigSetShowUnset(t *testing.T) {
	isolateConfig(t)

	if _, err := execute(t, nil, "config", "set", "server.port", "4242"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := execute(t, nil, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "server.port = 4242") {
		t.Errorf("show output missing port:\n%s", out)
	}

	if _, err := execute(t, nil, "config", "unset", "server.port"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	out, _ = execute(t, nil, "config", "show")
	if !strings.Contains(out, "server.port = 4100") {
		t.Errorf("port should fall back to default:\n%s", out)
	}
}

func TestConfigSet_RejectsSecrets(t *testing.T) {
	isolateConfig(t)

	if _, err := execute(t, nil, "config", "set", "ai.openrouter_api_key", "sk-test"); err == nil {
		t.Error("expected error when setting a secret")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "talkmatch version dev\n" {
		t.Errorf("output = %q", out)
	}
}
