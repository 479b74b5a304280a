// Package vehicle shapes session data for Android Auto and CarPlay head
// units: short labels, capped lists, and TTS-friendly voice responses.
package vehicle

import (
	"fmt"
	"strings"

	"github.com/konsolai/bridge/internal/session"
)

const (
	maxNameLen = 30
)

// Card is the simplified per-session entry for a head-unit display.
type Card struct {
	Name            string        `json:"name"`
	State           session.State `json:"state"`
	StateLabel      string        `json:"state_label"`
	NeedsAttention  bool          `json:"needs_attention"`
	AttentionReason string        `json:"attention_reason"`
	CostLabel       string        `json:"cost_label"`
}

// Dashboard is the top-level vehicle display payload.
type Dashboard struct {
	Sessions              []Card `json:"sessions"`
	TotalActive           int    `json:"total_active"`
	TotalNeedingAttention int    `json:"total_needing_attention"`
	SummaryText           string `json:"summary_text"`
}

var stateLabels = map[session.State]string{
	session.StateNotRunning:   "Stopped",
	session.StateStarting:     "Starting",
	session.StateIdle:         "Ready",
	session.StateWorking:      "Working",
	session.StateWaitingInput: "Needs Input",
	session.StateError:        "Error",
}

var attentionReasons = map[session.State]string{
	session.StateWaitingInput: "Permission needed",
	session.StateError:        "Error occurred",
}

// StateLabel returns the short human label for a state.
func StateLabel(s session.State) string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// BuildDashboard condenses summaries for a vehicle display, keeping at
// most limit sessions. Summaries arrive attention-first from the registry,
// so truncation keeps the sessions that matter.
func BuildDashboard(summaries []session.SessionSummary, limit int) Dashboard {
	if limit <= 0 {
		limit = 5
	}

	shown := summaries
	if len(shown) > limit {
		shown = shown[:limit]
	}

	cards := make([]Card, 0, len(shown))
	attention := 0
	for _, s := range shown {
		if s.NeedsAttention {
			attention++
		}
		cards = append(cards, Card{
			Name:            ShortName(s.Name),
			State:           s.State,
			StateLabel:      StateLabel(s.State),
			NeedsAttention:  s.NeedsAttention,
			AttentionReason: attentionReasons[s.State],
			CostLabel:       costLabel(s.TokenUsage),
		})
	}

	active := 0
	for _, s := range summaries {
		if s.State != session.StateNotRunning {
			active++
		}
	}

	return Dashboard{
		Sessions:              cards,
		TotalActive:           active,
		TotalNeedingAttention: attention,
		SummaryText:           summaryText(active, attention),
	}
}

// ShortName trims the namespace prefix and clamps the name for display.
func ShortName(name string) string {
	name = strings.TrimPrefix(name, "konsolai-")
	if len(name) > maxNameLen {
		return name[:maxNameLen-3] + "..."
	}
	return name
}

func costLabel(usage session.TokenUsage) string {
	if usage.TotalTokens() == 0 {
		return ""
	}
	return fmt.Sprintf("$%.2f", usage.EstimatedCostUSD())
}

func summaryText(active, attention int) string {
	switch {
	case attention == 1:
		return "1 session needs attention"
	case attention > 1:
		return fmt.Sprintf("%d sessions need attention", attention)
	case active == 0:
		return "No active sessions"
	case active == 1:
		return "1 session working"
	default:
		return fmt.Sprintf("%d sessions active", active)
	}
}
