package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/konsolai/bridge/internal/session"
	"github.com/konsolai/bridge/internal/transcript"
)

const maxPromptLen = 100_000

type promptRequest struct {
	Text string `json:"text"`
}

type yoloUpdateRequest struct {
	Yolo       *bool `json:"yolo"`
	DoubleYolo *bool `json:"double_yolo"`
	TripleYolo *bool `json:"triple_yolo"`
}

type newSessionRequest struct {
	Profile    string `json:"profile"`
	WorkingDir string `json:"working_dir"`
	Model      string `json:"model"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// handleSessions serves GET /api/sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	summaries, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleSessionByName dispatches /api/sessions/{name} and its
// subresources.
func (s *Server) handleSessionByName(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if rest == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session name is required")
		return
	}

	if rest == "new" {
		s.handleCreateSession(w, r)
		return
	}

	name := rest
	action := ""
	if idx := strings.Index(rest, "/"); idx >= 0 {
		name = rest[:idx]
		action = rest[idx+1:]
	}
	if name == "" || strings.Contains(action, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed session path")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleSessionDetail(w, r, name)
	case action == "transcript" && r.Method == http.MethodGet:
		s.handleTranscript(w, r, name)
	case action == "token-usage" && r.Method == http.MethodGet:
		s.handleTokenUsage(w, r, name)
	case action == "prompt" && r.Method == http.MethodPost:
		s.handlePrompt(w, r, name)
	case action == "approve" && r.Method == http.MethodPost:
		s.handleControl(w, r, name, "approved", func() error {
			return s.ctrl.SendKeys(r.Context(), name, "Enter")
		})
	case action == "deny" && r.Method == http.MethodPost:
		s.handleControl(w, r, name, "denied", func() error {
			if err := s.ctrl.SendKeys(r.Context(), name, "Escape"); err != nil {
				return err
			}
			return s.ctrl.SendText(r.Context(), name, "n")
		})
	case action == "stop" && r.Method == http.MethodPost:
		s.handleControl(w, r, name, "stopped", func() error {
			return s.ctrl.SendCtrlC(r.Context(), name)
		})
	case action == "kill" && r.Method == http.MethodPost:
		s.handleControl(w, r, name, "killed", func() error {
			return s.ctrl.KillSession(r.Context(), name)
		})
	case action == "yolo" && r.Method == http.MethodPut:
		s.handleYolo(w, r, name)
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "unsupported method or action")
	}
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request, name string) {
	detail, err := s.sessions.GetSession(r.Context(), name)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("session %q not found", name))
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, name string) {
	if _, err := s.sessions.GetSession(r.Context(), name); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("session %q not found", name))
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}

	lines := 500
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			lines = n
		}
	}

	captured, err := s.ctrl.CapturePane(r.Context(), name, lines)
	if err != nil {
		writeAPIError(w, http.StatusBadGateway, "CAPTURE_FAILED", "failed to capture terminal output")
		return
	}
	writeJSON(w, http.StatusOK, transcript.Parse(captured, name))
}

func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request, name string) {
	detail, err := s.sessions.GetSession(r.Context(), name)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("session %q not found", name))
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}
	usage := detail.TokenUsage
	writeJSON(w, http.StatusOK, map[string]any{
		"session":               name,
		"input_tokens":          usage.InputTokens,
		"output_tokens":         usage.OutputTokens,
		"cache_read_tokens":     usage.CacheReadTokens,
		"cache_creation_tokens": usage.CacheCreationTokens,
		"total_tokens":          usage.TotalTokens(),
		"estimated_cost_usd":    usage.EstimatedCostUSD(),
	})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request, name string) {
	var body promptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" || len(text) > maxPromptLen {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "text must be 1 to 100000 characters")
		return
	}

	if _, err := s.sessions.GetSession(r.Context(), name); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("session %q not found", name))
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}

	if err := s.ctrl.SendText(r.Context(), name, text); err != nil {
		writeAPIError(w, http.StatusBadGateway, "TMUX_SEND_FAILED", "failed to send to tmux")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent", "session": name})
}

func (s *Server) handleControl(w http.ResponseWriter, _ *http.Request, name, status string, op func() error) {
	if err := op(); err != nil {
		writeAPIError(w, http.StatusBadGateway, "TMUX_SEND_FAILED", "failed to send to tmux")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status, "session": name})
}

func (s *Server) handleYolo(w http.ResponseWriter, r *http.Request, name string) {
	var body yoloUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}

	detail, err := s.sessions.GetSession(r.Context(), name)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("session %q not found", name))
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}

	// The desktop app owns the flags; this endpoint reports the effective
	// values after applying the requested overrides.
	resolved := detail.Yolo
	if body.Yolo != nil {
		resolved.Yolo = *body.Yolo
	}
	if body.DoubleYolo != nil {
		resolved.DoubleYolo = *body.DoubleYolo
	}
	if body.TripleYolo != nil {
		resolved.TripleYolo = *body.TripleYolo
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     name,
		"yolo":        resolved.Yolo,
		"double_yolo": resolved.DoubleYolo,
		"triple_yolo": resolved.TripleYolo,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	body := newSessionRequest{Profile: "Default", Model: "default"}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	if body.Profile == "" {
		body.Profile = "Default"
	}

	// uuid strings are lowercase hex; the first eight characters make the
	// short id.
	id := uuid.NewString()[:8]
	name := fmt.Sprintf("konsolai-%s-%s", body.Profile, id)

	command := "claude"
	if body.Model != "" && body.Model != "default" {
		command += " --model " + body.Model
	}

	if err := s.ctrl.CreateSession(r.Context(), name, body.WorkingDir, command); err != nil {
		writeAPIError(w, http.StatusBadGateway, "TMUX_CREATE_FAILED", "failed to create tmux session")
		return
	}

	detail, err := s.sessions.GetSession(r.Context(), name)
	if err != nil {
		writeAPIError(w, http.StatusBadGateway, "SESSION_MISSING", "session created but not found")
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}
