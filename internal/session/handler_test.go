package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Broadcast(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func newHandlerFixture(t *testing.T) (*EventHandler, *Registry, *captureSink) {
	t.Helper()
	reg := newTestRegistry(t, "", liveSession("konsolai-Default-a1b2c3d4"))
	sink := &captureSink{}
	return NewEventHandler(reg, sink), reg, sink
}

func TestHandleStopEvent(t *testing.T) {
	handler, reg, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "a1b2c3d4", HookEvent{Type: "Stop", Fields: map[string]any{"type": "Stop"}})

	events := sink.all()
	require.Len(t, events, 2)

	assert.Equal(t, EventStateChanged, events[0].Type)
	assert.Equal(t, "konsolai-Default-a1b2c3d4", events[0].SessionName)
	assert.Equal(t, "idle", events[0].Data["state"])

	// The generic forwarding envelope always follows.
	assert.Equal(t, EventNotification, events[1].Type)
	assert.Equal(t, "Stop", events[1].Data["hook_event"])

	state, ok := reg.overlayState("konsolai-Default-a1b2c3d4")
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)
}

func TestHandlePreToolUse(t *testing.T) {
	handler, reg, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "a1b2c3d4", HookEvent{
		Type:   "PreToolUse",
		Fields: map[string]any{"type": "PreToolUse", "tool": "Bash"},
	})

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventStateChanged, events[0].Type)
	assert.Equal(t, "working", events[0].Data["state"])
	assert.Equal(t, "Bash", events[0].Data["tool"])

	state, ok := reg.overlayState("konsolai-Default-a1b2c3d4")
	require.True(t, ok)
	assert.Equal(t, StateWorking, state)
}

func TestHandlePostToolUseLeavesOverlayAlone(t *testing.T) {
	handler, reg, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "a1b2c3d4", HookEvent{
		Type:   "PostToolUse",
		Fields: map[string]any{"type": "PostToolUse", "tool": "Edit"},
	})

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventStateChanged, events[0].Type)
	assert.Equal(t, "post", events[0].Data["phase"])

	_, ok := reg.overlayState("konsolai-Default-a1b2c3d4")
	assert.False(t, ok, "PostToolUse must not write the overlay")
}

func TestHandleNotification(t *testing.T) {
	handler, _, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "a1b2c3d4", HookEvent{
		Type:   "Notification",
		Fields: map[string]any{"type": "Notification", "message": "permission needed"},
	})

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventNotification, events[0].Type)
	assert.Equal(t, "permission needed", events[0].Data["message"])
	assert.Equal(t, "Notification", events[1].Data["hook_event"])
}

func TestHandleUnknownTypeForwardsGenerically(t *testing.T) {
	handler, reg, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "a1b2c3d4", HookEvent{
		Type:   "SubagentStop",
		Fields: map[string]any{"type": "SubagentStop", "agent": "researcher"},
	})

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventNotification, events[0].Type)
	assert.Equal(t, "SubagentStop", events[0].Data["hook_event"])

	_, ok := reg.overlayState("konsolai-Default-a1b2c3d4")
	assert.False(t, ok)
}

func TestHandleUnresolvedIDFallsBackToRawID(t *testing.T) {
	handler, _, sink := newHandlerFixture(t)

	handler.HandleEvent(context.Background(), "ffffffff", HookEvent{Type: "Stop", Fields: map[string]any{"type": "Stop"}})

	events := sink.all()
	require.Len(t, events, 2)
	// Events are never dropped for resolution failure.
	assert.Equal(t, "ffffffff", events[0].SessionName)
	assert.Equal(t, "ffffffff", events[1].SessionName)
}
