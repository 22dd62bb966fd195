package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/talkmatch/internal/dispatch"
	"github.com/kalambet/talkmatch/internal/engine"
	"github.com/kalambet/talkmatch/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP and MCP surfaces drive.
type Deps struct {
	Manager    *session.Manager
	Dispatcher *dispatch.Dispatcher
}

// SendRequest is the body of POST /sessions/{name}/messages.
type SendRequest struct {
	Text string `json:"text"`
}

// ScriptRequest is the body of PUT /sessions/{name}/script.
type ScriptRequest struct {
	Replies []string `json:"replies"`
}

// OfficialRequest is the body of POST /matches/official.
type OfficialRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// SessionInfo describes one persona session.
type SessionInfo struct {
	Name         string `json:"name"`
	Personality  string `json:"personality"`
	Goal         string `json:"goal"`
	State        string `json:"state"`
	Status       string `json:"status"`
	UserMessages int    `json:"user_messages"`
}

// Transcript is the response of GET /sessions/{name}/messages.
type Transcript struct {
	Session  string           `json:"session"`
	Messages []engine.Message `json:"messages"`
}

// ProfileView is the response of GET /profiles/{name}.
type ProfileView struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
}

// NewHandler returns the local control API. Message sends and auto replies
// are serialized per session through deps.Dispatcher.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, RequestLogger)

	r.Get("/health", handleHealth)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", handleListSessions(deps))
		r.Get("/{name}/messages", handleGetMessages(deps))
		r.Post("/{name}/messages", handleSendMessage(deps))
		r.Post("/{name}/auto", handleAutoReply(deps))
		r.Put("/{name}/script", handleSetScript(deps))
	})

	r.Get("/profiles/{name}", handleGetProfile(deps))

	r.Route("/matches", func(r chi.Router) {
		r.Get("/", handleBoard(deps))
		r.Post("/calculate", handleCalculate(deps))
		r.Delete("/", handleClear(deps))
		r.Post("/official", handleDeclareMatch(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personas := deps.Manager.Personas()
		out := make([]SessionInfo, 0, len(personas))
		for _, p := range personas {
			s, err := deps.Manager.Session(p.Name)
			if err != nil {
				continue
			}
			snap := s.Ambassador().Snapshot()
			out = append(out, SessionInfo{
				Name:         p.Name,
				Personality:  p.Personality,
				Goal:         p.Goal,
				State:        snap.StateName,
				Status:       snap.Status,
				UserMessages: s.UserMessageCount(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		msgs, err := deps.Manager.Transcript(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Transcript{Session: name, Messages: msgs})
	}
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req SendRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		reply, err := sendMessage(r.Context(), deps, name, req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func handleAutoReply(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		auto, err := autoReply(r.Context(), deps, name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, auto)
	}
}

func handleSetScript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req ScriptRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Manager.SetScript(name, req.Replies); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		text, err := deps.Manager.ShowProfile(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ProfileView{Name: name, Profile: text})
	}
}

func handleBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Manager.Board())
	}
}

func handleCalculate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.Calculate(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Manager.Board())
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear matches: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Manager.Board())
	}
}

func handleDeclareMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OfficialRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.A == "" || req.B == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "a and b are required")
			return
		}
		if req.A == req.B {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "cannot match %s with itself", req.A)
			return
		}
		if err := deps.Manager.DeclareMatch(req.A, req.B); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Manager.Board())
	}
}

// sendMessage validates name before queueing so unknown names never get a
// worker of their own.
func sendMessage(ctx context.Context, deps Deps, name, text string) (session.Reply, error) {
	if _, err := deps.Manager.Session(name); err != nil {
		return session.Reply{}, err
	}
	return dispatch.Do(ctx, deps.Dispatcher, name, func(ctx context.Context) (session.Reply, error) {
		return deps.Manager.SendMessage(ctx, name, text)
	})
}

func autoReply(ctx context.Context, deps Deps, name string) (session.AutoReply, error) {
	if _, err := deps.Manager.Session(name); err != nil {
		return session.AutoReply{}, err
	}
	return dispatch.Do(ctx, deps.Dispatcher, name, func(ctx context.Context) (session.AutoReply, error) {
		return deps.Manager.AutoReply(ctx, name)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Anything unrecognized
// came from the AI service.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownPersona):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, dispatch.ErrClosed):
		httpError(w, http.StatusServiceUnavailable, "unavailable_error", "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "timeout_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
