package session

import "context"

// EventHandler maps hook events to overlay updates and broadcast
// envelopes.
type EventHandler struct {
	registry *Registry
	sink     EventSink
}

func NewEventHandler(registry *Registry, sink EventSink) *EventHandler {
	return &EventHandler{registry: registry, sink: sink}
}

// HandleEvent implements EventCallback. Every event yields one generic
// notification envelope carrying the raw payload; recognized types
// additionally update the overlay and/or emit a specific envelope first.
// Events are never dropped for resolution failure: an unknown short id
// routes under the raw id.
func (h *EventHandler) HandleEvent(ctx context.Context, sessionID string, event HookEvent) {
	name := h.registry.ResolveSessionID(ctx, sessionID)
	if name == "" {
		name = sessionID
	}

	switch event.Type {
	case "Stop":
		h.registry.UpdateState(name, StateIdle)
		h.sink.Broadcast(NewEvent(EventStateChanged, name, map[string]any{
			"state": "idle",
		}))
	case "PreToolUse":
		h.registry.UpdateState(name, StateWorking)
		h.sink.Broadcast(NewEvent(EventStateChanged, name, map[string]any{
			"state": "working",
			"tool":  event.StringField("tool"),
		}))
	case "PostToolUse":
		// Tool completion does not mean Claude went idle; the overlay is
		// left alone until Stop arrives.
		h.sink.Broadcast(NewEvent(EventStateChanged, name, map[string]any{
			"state": "working",
			"tool":  event.StringField("tool"),
			"phase": "post",
		}))
	case "Notification":
		h.sink.Broadcast(NewEvent(EventNotification, name, map[string]any{
			"message": event.StringField("message"),
		}))
	}

	h.sink.Broadcast(NewEvent(EventNotification, name, map[string]any{
		"hook_event": event.Type,
		"raw":        event.Fields,
	}))
}
