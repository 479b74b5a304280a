// Package transcript extracts conversation structure from captured
// terminal output.
package transcript

import (
	"regexp"
	"strings"
	"time"
)

// Message is a single turn in the conversation.
type Message struct {
	Role      string     `json:"role"` // user, assistant, system, tool
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// Transcript is the parsed conversation for one session.
type Transcript struct {
	SessionName string    `json:"session_name"`
	Messages    []Message `json:"messages"`
	Raw         string    `json:"raw"`
}

var (
	ansiRE       = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?\x07|\x1b\(B`)
	userPromptRE = regexp.MustCompile(`^(?:❯|>|\$)\s*(.+)`)
	toolUseRE    = regexp.MustCompile(`^\s*(?:Read|Edit|Write|Bash|Glob|Grep|Task|WebFetch|WebSearch|NotebookEdit|TodoWrite)\b`)
	separatorRE  = regexp.MustCompile(`^[-─━═]{3,}`)
)

// StripANSI removes ANSI escape sequences.
func StripANSI(text string) string {
	return ansiRE.ReplaceAllString(text, "")
}

// Parse splits raw capture-pane output into user/assistant turns. Prompt
// markers open a user turn; separators close the current turn; tool-use
// lines and everything following a user prompt belong to the assistant.
func Parse(raw, sessionName string) Transcript {
	clean := StripANSI(raw)

	var messages []Message
	var currentRole string
	var currentLines []string

	flush := func() {
		if currentRole != "" && len(currentLines) > 0 {
			content := strings.TrimSpace(strings.Join(currentLines, "\n"))
			if content != "" {
				messages = append(messages, Message{Role: currentRole, Content: content})
			}
		}
		currentRole = ""
		currentLines = nil
	}

	for _, line := range strings.Split(clean, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			if len(currentLines) > 0 {
				currentLines = append(currentLines, "")
			}
			continue
		}

		if m := userPromptRE.FindStringSubmatch(stripped); m != nil {
			flush()
			currentRole = "user"
			currentLines = []string{m[1]}
			continue
		}

		if separatorRE.MatchString(stripped) {
			flush()
			continue
		}

		if toolUseRE.MatchString(stripped) {
			if currentRole != "assistant" {
				flush()
				currentRole = "assistant"
			}
			currentLines = append(currentLines, stripped)
			continue
		}

		if currentRole == "user" {
			flush()
			currentRole = "assistant"
		}
		if currentRole == "" {
			currentRole = "assistant"
		}
		currentLines = append(currentLines, stripped)
	}
	flush()

	return Transcript{SessionName: sessionName, Messages: messages, Raw: raw}
}
