package vehicle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/konsolai/bridge/internal/session"
)

// Result is the TTS-friendly answer to a voice command.
type Result struct {
	Success        bool   `json:"success"`
	SpokenResponse string `json:"spoken_response"`
	ActionTaken    string `json:"action_taken,omitempty"`
	SessionName    string `json:"session_name,omitempty"`
}

// Commander is the slice of the tmux manager voice routing needs.
type Commander interface {
	SendKeys(ctx context.Context, name, keys string) error
	SendText(ctx context.Context, name, text string) error
	SendCtrlC(ctx context.Context, name string) error
}

// VoiceRouter maps spoken phrases to session actions.
type VoiceRouter struct {
	tmux Commander
}

func NewVoiceRouter(tmux Commander) *VoiceRouter {
	return &VoiceRouter{tmux: tmux}
}

// MatchSession fuzzy-matches a spoken session reference against the known
// names and returns the best hit, or "" when nothing is close. Speech
// recognizers hand back spaced lowercase words, so the input is folded
// into the dash-delimited name shape first.
func MatchSession(summaries []session.SessionSummary, spoken string) string {
	if spoken == "" || len(summaries) == 0 {
		return ""
	}
	names := make([]string, len(summaries))
	for i, s := range summaries {
		names[i] = s.Name
	}
	matches := fuzzy.Find(normalizeSpoken(spoken), names)
	if len(matches) == 0 {
		return ""
	}
	return names[matches[0].Index]
}

func normalizeSpoken(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}

// Handle routes one voice command. target may be empty (auto-select: first
// session needing attention, else first active) or a spoken session
// reference resolved by fuzzy match.
func (r *VoiceRouter) Handle(ctx context.Context, summaries []session.SessionSummary, text, target string) Result {
	command := strings.ToLower(strings.TrimSpace(text))

	if target != "" {
		if matched := MatchSession(summaries, target); matched != "" {
			target = matched
		}
	} else {
		target = autoSelect(summaries)
	}

	switch command {
	case "approve", "yes", "accept", "allow":
		return r.approve(ctx, target)
	case "deny", "no", "reject", "block":
		return r.deny(ctx, target)
	case "stop", "cancel", "halt":
		return r.stop(ctx, target)
	case "status", "what's happening", "whats happening":
		return statusResult(summaries)
	case "list", "list sessions", "sessions", "show sessions":
		return listResult(summaries)
	}

	// Anything else is a prompt for the target session.
	if target == "" {
		return Result{
			Success:        false,
			SpokenResponse: "No active session found. Please start a session first.",
		}
	}
	if err := r.tmux.SendText(ctx, target, strings.TrimSpace(text)); err != nil {
		return Result{
			Success:        false,
			SpokenResponse: fmt.Sprintf("Failed to send prompt to %s.", ShortName(target)),
		}
	}
	return Result{
		Success:        true,
		SpokenResponse: fmt.Sprintf("Prompt sent to %s.", ShortName(target)),
		ActionTaken:    "prompt_sent",
		SessionName:    target,
	}
}

func autoSelect(summaries []session.SessionSummary) string {
	for _, s := range summaries {
		if s.NeedsAttention {
			return s.Name
		}
	}
	for _, s := range summaries {
		if s.State != session.StateNotRunning {
			return s.Name
		}
	}
	return ""
}

func (r *VoiceRouter) approve(ctx context.Context, target string) Result {
	if target == "" {
		return Result{Success: false, SpokenResponse: "Nothing is waiting for approval."}
	}
	if err := r.tmux.SendKeys(ctx, target, "Enter"); err != nil {
		return Result{Success: false, SpokenResponse: fmt.Sprintf("Could not approve on %s.", ShortName(target))}
	}
	return Result{
		Success:        true,
		SpokenResponse: fmt.Sprintf("Approved on %s.", ShortName(target)),
		ActionTaken:    "approved",
		SessionName:    target,
	}
}

func (r *VoiceRouter) deny(ctx context.Context, target string) Result {
	if target == "" {
		return Result{Success: false, SpokenResponse: "Nothing is waiting for approval."}
	}
	err := r.tmux.SendKeys(ctx, target, "Escape")
	if err == nil {
		err = r.tmux.SendText(ctx, target, "n")
	}
	if err != nil {
		return Result{Success: false, SpokenResponse: fmt.Sprintf("Could not deny on %s.", ShortName(target))}
	}
	return Result{
		Success:        true,
		SpokenResponse: fmt.Sprintf("Denied on %s.", ShortName(target)),
		ActionTaken:    "denied",
		SessionName:    target,
	}
}

func (r *VoiceRouter) stop(ctx context.Context, target string) Result {
	if target == "" {
		return Result{Success: false, SpokenResponse: "No session to stop."}
	}
	if err := r.tmux.SendCtrlC(ctx, target); err != nil {
		return Result{Success: false, SpokenResponse: fmt.Sprintf("Could not stop %s.", ShortName(target))}
	}
	return Result{
		Success:        true,
		SpokenResponse: fmt.Sprintf("Stopped %s.", ShortName(target)),
		ActionTaken:    "stopped",
		SessionName:    target,
	}
}

func statusResult(summaries []session.SessionSummary) Result {
	active := 0
	attention := 0
	for _, s := range summaries {
		if s.State != session.StateNotRunning {
			active++
		}
		if s.NeedsAttention {
			attention++
		}
	}
	return Result{
		Success:        true,
		SpokenResponse: summaryText(active, attention),
		ActionTaken:    "status",
	}
}

func listResult(summaries []session.SessionSummary) Result {
	var parts []string
	for _, s := range summaries {
		if s.State == session.StateNotRunning {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", ShortName(s.Name), strings.ToLower(StateLabel(s.State))))
		if len(parts) == 5 {
			break
		}
	}
	if len(parts) == 0 {
		return Result{Success: true, SpokenResponse: "No active sessions.", ActionTaken: "list"}
	}
	return Result{
		Success:        true,
		SpokenResponse: strings.Join(parts, ". ") + ".",
		ActionTaken:    "list",
	}
}
