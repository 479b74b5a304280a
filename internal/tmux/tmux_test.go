package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSessionName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		profile   string
		sessionID string
		ok        bool
	}{
		{"simple", "konsolai-Default-a1b2c3d4", "Default", "a1b2c3d4", true},
		{"profile with dashes", "konsolai-my-project-deadbeef", "my-project", "deadbeef", true},
		{"missing prefix", "other-Default-a1b2c3d4", "", "", false},
		{"short id too short", "konsolai-Default-a1b2", "", "", false},
		{"uppercase hex rejected", "konsolai-Default-A1B2C3D4", "", "", false},
		{"no profile", "konsolai-a1b2c3d4", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, id, ok := ParseSessionName(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.profile, profile)
			assert.Equal(t, tt.sessionID, id)
		})
	}
}

func TestParseSessionList(t *testing.T) {
	out := "konsolai-Default-a1b2c3d4\t120\t40\t1700000000\t1\n" +
		"scratch\t80\t24\t1700000001\t0\n" +
		"konsolai-Work-deadbeef\t200\t50\t1700000002\t0\n" +
		"short\tline\n"

	sessions := parseSessionList(out)
	assert.Len(t, sessions, 2)

	assert.Equal(t, "konsolai-Default-a1b2c3d4", sessions[0].Name)
	assert.Equal(t, "Default", sessions[0].Profile)
	assert.Equal(t, "a1b2c3d4", sessions[0].SessionID)
	assert.Equal(t, 120, sessions[0].Width)
	assert.Equal(t, 40, sessions[0].Height)
	assert.Equal(t, int64(1700000000), sessions[0].Created)
	assert.True(t, sessions[0].Attached)

	assert.Equal(t, "Work", sessions[1].Profile)
	assert.False(t, sessions[1].Attached)
}

func TestParseSessionListEmpty(t *testing.T) {
	assert.Empty(t, parseSessionList(""))
	assert.Empty(t, parseSessionList("\n\n"))
}
