package session

import "encoding/json"

// State describes the lifecycle of the Claude process inside a session.
type State int

const (
	StateNotRunning State = iota
	StateStarting
	StateIdle
	StateWorking
	StateWaitingInput
	StateError
)

var stateNames = map[State]string{
	StateNotRunning:   "not_running",
	StateStarting:     "starting",
	StateIdle:         "idle",
	StateWorking:      "working",
	StateWaitingInput: "waiting_input",
	StateError:        "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "not_running"
}

// NeedsAttention reports whether the state requires operator action.
func (s State) NeedsAttention() bool {
	return s == StateWaitingInput || s == StateError
}

// MarshalJSON renders the snake_case wire form used by the REST API and
// WebSocket envelopes.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseState(raw)
	return nil
}

// ParseState converts a state string to a State. It accepts both the
// desktop app's CamelCase spellings (including the legacy
// "WaitingForInput") and the bridge's snake_case wire form; anything
// unrecognized maps to StateNotRunning.
func ParseState(raw string) State {
	switch raw {
	case "Starting", "starting":
		return StateStarting
	case "Idle", "idle":
		return StateIdle
	case "Working", "working":
		return StateWorking
	case "WaitingInput", "WaitingForInput", "waiting_input":
		return StateWaitingInput
	case "Error", "error":
		return StateError
	default:
		return StateNotRunning
	}
}
