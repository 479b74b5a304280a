package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/konsolai/bridge/internal/tmux"
)

// ErrNotFound is returned by GetSession when a name is absent from both
// the persisted store and live tmux.
var ErrNotFound = errors.New("session not found")

// LiveLister is the slice of the tmux manager the registry needs.
type LiveLister interface {
	ListSessions(ctx context.Context) ([]tmux.SessionInfo, error)
	SessionExists(ctx context.Context, name string) (bool, error)
}

// Registry reconciles three state sources into one consistent view: the
// persisted store, live tmux sessions, and an in-memory state overlay fed
// by hook events. Summaries and details are computed at call time; only
// the overlay survives between calls.
type Registry struct {
	store *PersistedStore
	tmux  LiveLister

	mu      sync.RWMutex
	overlay map[string]State
}

func NewRegistry(store *PersistedStore, live LiveLister) *Registry {
	return &Registry{store: store, tmux: live, overlay: make(map[string]State)}
}

// UpdateState overwrites the cached state for a session. This is the sole
// overlay mutator; a value stays until the next overwrite.
func (r *Registry) UpdateState(name string, state State) {
	r.mu.Lock()
	r.overlay[name] = state
	r.mu.Unlock()
}

func (r *Registry) overlayState(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.overlay[name]
	return state, ok
}

// ListSessions merges live tmux sessions with persisted records. Live
// sessions take state from the overlay, falling back to the persisted
// state string; persisted-only sessions are NotRunning no matter what the
// overlay says.
func (r *Registry) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	persisted := r.store.Read()
	live, err := r.tmux.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(live)+len(persisted))
	seen := make(map[string]struct{}, len(live))
	for _, info := range live {
		seen[info.Name] = struct{}{}
		meta := persisted[info.Name]
		state, ok := r.overlayState(info.Name)
		if !ok {
			state = ParseState(meta.State)
		}
		var created *time.Time
		if info.Created > 0 {
			t := time.Unix(info.Created, 0).UTC()
			created = &t
		}
		summaries = append(summaries, SessionSummary{
			Name:           info.Name,
			SessionID:      info.SessionID,
			Profile:        info.Profile,
			State:          state,
			NeedsAttention: state.NeedsAttention(),
			TokenUsage:     meta.Tokens(),
			Yolo:           meta.YoloSettings(),
			CreatedAt:      created,
			LastActivity:   parseTimestamp(meta.LastActivity),
		})
	}

	// Deterministic order for persisted-only entries before the real sort.
	names := make([]string, 0, len(persisted))
	for name := range persisted {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		meta := persisted[name]
		summaries = append(summaries, SessionSummary{
			Name:           name,
			SessionID:      meta.SessionID,
			Profile:        meta.Profile,
			State:          StateNotRunning,
			NeedsAttention: false,
			TokenUsage:     meta.Tokens(),
			Yolo:           meta.YoloSettings(),
			CreatedAt:      parseTimestamp(meta.CreatedAt),
			LastActivity:   parseTimestamp(meta.LastActivity),
		})
	}

	sortSummaries(summaries)
	return summaries, nil
}

// sortSummaries orders attention-needing sessions first; within a bucket,
// oldest activity first, with missing timestamps sorting earliest.
func sortSummaries(summaries []SessionSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].NeedsAttention != summaries[j].NeedsAttention {
			return summaries[i].NeedsAttention
		}
		return activityKey(summaries[i]).Before(activityKey(summaries[j]))
	})
}

func activityKey(s SessionSummary) time.Time {
	if s.LastActivity == nil {
		return time.Time{}
	}
	return *s.LastActivity
}

// GetSession returns full detail for one session, or ErrNotFound when the
// name is absent from both sources. A session with no live tmux backing is
// always NotRunning.
func (r *Registry) GetSession(ctx context.Context, name string) (*SessionDetail, error) {
	persisted := r.store.Read()
	meta, hasMeta := persisted[name]
	exists, err := r.tmux.SessionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists && !hasMeta {
		return nil, ErrNotFound
	}

	state := StateNotRunning
	if exists {
		var ok bool
		if state, ok = r.overlayState(name); !ok {
			state = ParseState(meta.State)
		}
	}

	profile := meta.Profile
	sessionID := meta.SessionID
	if profile == "" {
		if p, id, ok := splitSessionName(name); ok {
			profile, sessionID = p, id
		}
	}

	model := meta.Model
	if model == "" {
		model = "default"
	}

	return &SessionDetail{
		SessionSummary: SessionSummary{
			Name:           name,
			SessionID:      sessionID,
			Profile:        profile,
			State:          state,
			NeedsAttention: state.NeedsAttention(),
			TokenUsage:     meta.Tokens(),
			Yolo:           meta.YoloSettings(),
			CreatedAt:      parseTimestamp(meta.CreatedAt),
			LastActivity:   parseTimestamp(meta.LastActivity),
		},
		WorkingDir:         meta.WorkingDir,
		Model:              model,
		AutoContinuePrompt: meta.AutoContinuePrompt,
		ApprovalCount:      meta.ApprovalCount,
	}, nil
}

// ResolveSessionID finds the full session name whose trailing id segment
// equals shortID. The persisted store is consulted first; only a miss
// there falls through to the live tmux list, so the hot path for hook
// events stays off the tmux CLI. Returns "" when nothing matches.
func (r *Registry) ResolveSessionID(ctx context.Context, shortID string) string {
	if shortID == "" {
		return ""
	}
	suffix := "-" + shortID

	persisted := make([]string, 0)
	for name := range r.store.Read() {
		persisted = append(persisted, name)
	}
	if name := matchSuffix(persisted, suffix); name != "" {
		return name
	}

	live, err := r.tmux.ListSessions(ctx)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(live))
	for _, info := range live {
		names = append(names, info.Name)
	}
	return matchSuffix(names, suffix)
}

// matchSuffix returns the lexically first name with the given suffix, so
// resolution is deterministic regardless of map iteration order.
func matchSuffix(names []string, suffix string) string {
	sort.Strings(names)
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	return ""
}

// splitSessionName derives profile and short id from the dash-delimited
// session name konsolai-{profile}-{id}. Middle segments join as the
// profile.
func splitSessionName(name string) (profile, id string, ok bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return "", "", false
	}
	return strings.Join(parts[1:len(parts)-1], "-"), parts[len(parts)-1], true
}
