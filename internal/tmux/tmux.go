// Package tmux wraps the tmux CLI for Konsolai session control. Every
// method shells out; nothing is cached between calls.
package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/konsolai/bridge/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// SessionPrefix namespaces every tmux session the bridge manages.
const SessionPrefix = "konsolai-"

// sessionNameRE matches konsolai-{profile}-{8hex}. The profile may itself
// contain dashes.
var sessionNameRE = regexp.MustCompile(`^konsolai-(.+)-([0-9a-f]{8})$`)

const commandTimeout = 5 * time.Second

// SessionInfo describes one live tmux session.
type SessionInfo struct {
	Name      string
	Profile   string
	SessionID string
	Width     int
	Height    int
	Created   int64
	Attached  bool
}

// ParseSessionName extracts profile and short id from a Konsolai session
// name. ok is false for names outside the konsolai namespace.
func ParseSessionName(name string) (profile, sessionID string, ok bool) {
	m := sessionNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Manager wraps the tmux CLI.
type Manager struct {
	group singleflight.Group
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "tmux", args...).Output()
	return string(out), err
}

// ListSessions returns every live Konsolai session. Concurrent callers
// share a single tmux invocation; a missing tmux server yields an empty
// list, not an error.
func (m *Manager) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	v, err, _ := m.group.Do("list-sessions", func() (any, error) {
		out, err := m.run(ctx, "list-sessions", "-F",
			"#{session_name}\t#{session_width}\t#{session_height}\t#{session_created}\t#{session_attached}")
		if err != nil {
			// tmux exits non-zero when no server is running.
			return []SessionInfo(nil), nil
		}
		return parseSessionList(out), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SessionInfo), nil
}

func parseSessionList(out string) []SessionInfo {
	var sessions []SessionInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 {
			continue
		}
		profile, id, ok := ParseSessionName(parts[0])
		if !ok {
			continue
		}
		sessions = append(sessions, SessionInfo{
			Name:      parts[0],
			Profile:   profile,
			SessionID: id,
			Width:     atoi(parts[1]),
			Height:    atoi(parts[2]),
			Created:   int64(atoi(parts[3])),
			Attached:  parts[4] != "0",
		})
	}
	return sessions
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// SessionExists reports whether a tmux session with this exact name is
// alive.
func (m *Manager) SessionExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := m.run(ctx, "has-session", "-t", "="+name)
	return err == nil, nil
}

// CapturePane captures the last lines of terminal output from a session's
// active pane.
func (m *Manager) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 200
	}
	out, err := m.run(ctx, "capture-pane", "-t", name, "-p", "-S", strconv.Itoa(-lines))
	if err != nil {
		return "", fmt.Errorf("capture-pane %s: %w", name, err)
	}
	return out, nil
}

// SendKeys sends a tmux key name (e.g. "Enter", "Escape") to a session.
func (m *Manager) SendKeys(ctx context.Context, name, keys string) error {
	if _, err := m.run(ctx, "send-keys", "-t", name, keys); err != nil {
		return fmt.Errorf("send-keys %s: %w", name, err)
	}
	return nil
}

// SendText sends literal text followed by Enter. The literal flag keeps
// tmux from interpreting key names inside the text.
func (m *Manager) SendText(ctx context.Context, name, text string) error {
	if _, err := m.run(ctx, "send-keys", "-t", name, "-l", text); err != nil {
		return fmt.Errorf("send-keys -l %s: %w", name, err)
	}
	if _, err := m.run(ctx, "send-keys", "-t", name, "Enter"); err != nil {
		return fmt.Errorf("send-keys Enter %s: %w", name, err)
	}
	return nil
}

// SendCtrlC interrupts whatever runs in the session.
func (m *Manager) SendCtrlC(ctx context.Context, name string) error {
	if _, err := m.run(ctx, "send-keys", "-t", name, "C-c"); err != nil {
		return fmt.Errorf("send C-c %s: %w", name, err)
	}
	return nil
}

// KillSession kills the tmux session entirely.
func (m *Manager) KillSession(ctx context.Context, name string) error {
	if _, err := m.run(ctx, "kill-session", "-t", name); err != nil {
		return fmt.Errorf("kill-session %s: %w", name, err)
	}
	tmuxLog.Info("session_killed", slog.String("session", name))
	return nil
}

// CreateSession creates a detached tmux session, optionally with a working
// directory and an initial command.
func (m *Manager) CreateSession(ctx context.Context, name, workingDir, command string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workingDir != "" {
		args = append(args, "-c", workingDir)
	}
	if command != "" {
		args = append(args, command)
	}
	if _, err := m.run(ctx, args...); err != nil {
		return fmt.Errorf("new-session %s: %w", name, err)
	}
	tmuxLog.Info("session_created", slog.String("session", name))
	return nil
}
