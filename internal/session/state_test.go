package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		raw  string
		want State
	}{
		{"NotRunning", StateNotRunning},
		{"Starting", StateStarting},
		{"Idle", StateIdle},
		{"Working", StateWorking},
		{"WaitingInput", StateWaitingInput},
		{"WaitingForInput", StateWaitingInput},
		{"Error", StateError},
		{"idle", StateIdle},
		{"waiting_input", StateWaitingInput},
		{"", StateNotRunning},
		{"garbage", StateNotRunning},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseState(tt.raw))
		})
	}
}

func TestStateNeedsAttention(t *testing.T) {
	for _, state := range []State{StateNotRunning, StateStarting, StateIdle, StateWorking} {
		assert.False(t, state.NeedsAttention(), state.String())
	}
	assert.True(t, StateWaitingInput.NeedsAttention())
	assert.True(t, StateError.NeedsAttention())
}

func TestStateJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StateWaitingInput)
	require.NoError(t, err)
	assert.Equal(t, `"waiting_input"`, string(data))

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StateWaitingInput, decoded)
}

func TestHookEventUnmarshal(t *testing.T) {
	var ev HookEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"PreToolUse","tool":"Bash","nested":{"a":1}}`), &ev))
	assert.Equal(t, "PreToolUse", ev.Type)
	assert.Equal(t, "Bash", ev.StringField("tool"))
	assert.Equal(t, "", ev.StringField("missing"))
	assert.Equal(t, "", ev.StringField("nested"))
}

func TestHookEventUnmarshalRejectsMissingType(t *testing.T) {
	var ev HookEvent
	assert.Error(t, json.Unmarshal([]byte(`{"tool":"Bash"}`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`{"type":42}`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &ev))
}
