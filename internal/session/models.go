package session

import (
	"encoding/json"
	"errors"
	"time"
)

// TokenUsage aggregates the token counters the desktop app records per
// session.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
}

func (t TokenUsage) TotalTokens() int {
	return t.InputTokens + t.OutputTokens + t.CacheReadTokens + t.CacheCreationTokens
}

// EstimatedCostUSD approximates spend from public per-million-token rates.
func (t TokenUsage) EstimatedCostUSD() float64 {
	return (float64(t.InputTokens)*3.0 +
		float64(t.OutputTokens)*15.0 +
		float64(t.CacheCreationTokens)*0.30 +
		float64(t.CacheReadTokens)*0.30) / 1_000_000
}

// YoloSettings mirrors the auto-approval flags from the desktop app.
type YoloSettings struct {
	Yolo       bool `json:"yolo"`
	DoubleYolo bool `json:"double_yolo"`
	TripleYolo bool `json:"triple_yolo"`
}

// persistedTokens is the camelCase on-disk shape of the token counters.
type persistedTokens struct {
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	CacheReadTokens     int `json:"cacheReadTokens"`
	CacheCreationTokens int `json:"cacheCreationTokens"`
}

// PersistedRecord is one entry of the desktop app's sessions.json. The
// bridge never writes these.
type PersistedRecord struct {
	Name               string          `json:"name"`
	Profile            string          `json:"profile"`
	SessionID          string          `json:"sessionId"`
	State              string          `json:"state"`
	TokenUsage         persistedTokens `json:"tokenUsage"`
	YoloMode           bool            `json:"yoloMode"`
	DoubleYoloMode     bool            `json:"doubleYoloMode"`
	TripleYoloMode     bool            `json:"tripleYoloMode"`
	CreatedAt          string          `json:"createdAt"`
	LastActivity       string          `json:"lastActivity"`
	WorkingDir         string          `json:"workingDir"`
	Model              string          `json:"model"`
	AutoContinuePrompt string          `json:"autoContinuePrompt"`
	ApprovalCount      int             `json:"approvalCount"`
}

// Tokens converts the persisted counters to the API shape.
func (r PersistedRecord) Tokens() TokenUsage {
	return TokenUsage{
		InputTokens:         r.TokenUsage.InputTokens,
		OutputTokens:        r.TokenUsage.OutputTokens,
		CacheReadTokens:     r.TokenUsage.CacheReadTokens,
		CacheCreationTokens: r.TokenUsage.CacheCreationTokens,
	}
}

func (r PersistedRecord) YoloSettings() YoloSettings {
	return YoloSettings{
		Yolo:       r.YoloMode,
		DoubleYolo: r.DoubleYoloMode,
		TripleYolo: r.TripleYoloMode,
	}
}

// SessionSummary is the compact per-session view for list endpoints and
// vehicle displays. Computed on demand, never cached.
type SessionSummary struct {
	Name           string       `json:"name"`
	SessionID      string       `json:"session_id"`
	Profile        string       `json:"profile"`
	State          State        `json:"state"`
	NeedsAttention bool         `json:"needs_attention"`
	TokenUsage     TokenUsage   `json:"token_usage"`
	Yolo           YoloSettings `json:"yolo"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	LastActivity   *time.Time   `json:"last_activity,omitempty"`
}

// SessionDetail extends the summary with fields only the detail endpoint
// exposes.
type SessionDetail struct {
	SessionSummary
	WorkingDir         string `json:"working_dir"`
	Model              string `json:"model"`
	AutoContinuePrompt string `json:"auto_continue_prompt"`
	ApprovalCount      int    `json:"approval_count"`
}

// HookEvent is a single JSON object received on a session's hook socket.
// Only Type is interpreted; everything else rides along in Fields.
type HookEvent struct {
	Type   string
	Fields map[string]any
}

var errNoEventType = errors.New(`hook event missing string "type"`)

func (e *HookEvent) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	typ, ok := fields["type"].(string)
	if !ok {
		return errNoEventType
	}
	e.Type = typ
	e.Fields = fields
	return nil
}

func (e HookEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// StringField extracts a string field, returning "" when absent or not a
// string.
func (e HookEvent) StringField(key string) string {
	v, _ := e.Fields[key].(string)
	return v
}

// EventType enumerates the envelope types delivered to subscribers.
type EventType string

const (
	EventStateChanged        EventType = "state_changed"
	EventPermissionRequested EventType = "permission_requested"
	EventTaskStarted         EventType = "task_started"
	EventTaskFinished        EventType = "task_finished"
	EventNotification        EventType = "notification"
	EventTranscriptUpdate    EventType = "transcript_update"
	EventTokenUsageUpdated   EventType = "token_usage_updated"
	EventSessionCreated      EventType = "session_created"
	EventSessionRemoved      EventType = "session_removed"
)

// Event is the envelope broadcast verbatim to every subscriber.
type Event struct {
	Type        EventType      `json:"type"`
	SessionName string         `json:"session_name"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

// NewEvent stamps an envelope with the current UTC time.
func NewEvent(t EventType, sessionName string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: t, SessionName: sessionName, Timestamp: time.Now().UTC(), Data: data}
}

// EventSink receives envelopes for fan-out to subscribers.
type EventSink interface {
	Broadcast(Event)
}

// parseTimestamp accepts the RFC 3339 and naive ISO forms the desktop app
// writes. Returns nil when empty or unparseable.
func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
