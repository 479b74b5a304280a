package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/konsolai/bridge/internal/session"
	"github.com/konsolai/bridge/internal/vehicle"
)

type voiceRequest struct {
	Text        string `json:"text"`
	Source      string `json:"source"`
	SessionName string `json:"session_name"`
}

// handleVehicleDashboard serves GET /api/vehicle/dashboard: a capped,
// attention-first session list with short labels for head-unit templates.
func (s *Server) handleVehicleDashboard(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, vehicle.BuildDashboard(summaries, s.cfg.VehicleSessionLimit))
}

// handleVehicleVoice serves POST /api/vehicle/voice.
func (s *Server) handleVehicleVoice(w http.ResponseWriter, r *http.Request) {
	s.routeVoiceCommand(w, r, "")
}

// handleSiriShortcut serves POST /api/vehicle/carplay/siri-shortcut.
// Siri Shortcuts invoke it with voice-transcribed text; routing is the
// voice path with the source pinned to carplay.
func (s *Server) handleSiriShortcut(w http.ResponseWriter, r *http.Request) {
	s.routeVoiceCommand(w, r, "carplay")
}

func (s *Server) routeVoiceCommand(w http.ResponseWriter, r *http.Request, forceSource string) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	var body voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
		return
	}
	if forceSource != "" {
		body.Source = forceSource
	}

	summaries, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, s.voice.Handle(r.Context(), summaries, body.Text, body.SessionName))
}

// handleAndroidAutoSessions serves GET /api/vehicle/android-auto/sessions:
// the session list squeezed into Android Auto's six-row list template.
func (s *Server) handleAndroidAutoSessions(w http.ResponseWriter, r *http.Request) {
	summaries, ok := s.vehicleSummaries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, vehicle.BuildAndroidAutoList(summaries, s.cfg.VehicleSessionLimit))
}

// handleCarPlaySessions serves GET /api/vehicle/carplay/sessions: the
// CPListTemplate projection, which allows more rows and carries the raw
// state for Siri cells.
func (s *Server) handleCarPlaySessions(w http.ResponseWriter, r *http.Request) {
	summaries, ok := s.vehicleSummaries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, vehicle.BuildCarPlayList(summaries, s.cfg.VehicleSessionLimit))
}

func (s *Server) vehicleSummaries(w http.ResponseWriter, r *http.Request) ([]session.SessionSummary, bool) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return nil, false
	}
	if !s.requireAuth(w, r) {
		return nil, false
	}
	summaries, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list sessions")
		return nil, false
	}
	return summaries, true
}
