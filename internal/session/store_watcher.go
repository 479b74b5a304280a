package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const storeDebounce = 100 * time.Millisecond

// StoreWatcher watches the desktop app's sessions file and emits
// session_created, session_removed, and token_usage_updated envelopes when
// the persisted record set changes between snapshots.
type StoreWatcher struct {
	store   *PersistedStore
	sink    EventSink
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu       sync.Mutex
	prev     map[string]PersistedRecord
	debounce *time.Timer
}

// NewStoreWatcher creates a watcher on the sessions file's directory (the
// desktop app replaces the file atomically, so the file itself cannot be
// watched). Call Start in a goroutine.
func NewStoreWatcher(store *PersistedStore, sink EventSink) (*StoreWatcher, error) {
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return &StoreWatcher{
		store:   store,
		sink:    sink,
		watcher: watcher,
		done:    make(chan struct{}),
		prev:    store.Read(),
	}, nil
}

// Start blocks processing filesystem events until Stop is called. Rapid
// rewrites are coalesced with a short debounce.
func (w *StoreWatcher) Start() {
	target := filepath.Clean(w.store.Path())

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(storeDebounce, w.diff)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			storeLog.Warn("store_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Stop shuts down the watcher and cancels any pending debounced diff, so
// nothing broadcasts after Stop returns.
func (w *StoreWatcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.mu.Unlock()
}

// diff compares the current record set against the previous snapshot and
// broadcasts one envelope per observed change. A no-op once Stop has run:
// a timer that fired between arming and Stop must not broadcast late.
func (w *StoreWatcher) diff() {
	select {
	case <-w.done:
		return
	default:
	}

	current := w.store.Read()

	w.mu.Lock()
	prev := w.prev
	w.prev = current
	w.mu.Unlock()

	for name, rec := range current {
		old, known := prev[name]
		if !known {
			w.sink.Broadcast(NewEvent(EventSessionCreated, name, map[string]any{
				"profile": rec.Profile,
			}))
			continue
		}
		if old.TokenUsage != rec.TokenUsage {
			usage := rec.Tokens()
			w.sink.Broadcast(NewEvent(EventTokenUsageUpdated, name, map[string]any{
				"input_tokens":          usage.InputTokens,
				"output_tokens":         usage.OutputTokens,
				"cache_read_tokens":     usage.CacheReadTokens,
				"cache_creation_tokens": usage.CacheCreationTokens,
				"total_tokens":          usage.TotalTokens(),
			}))
		}
	}

	for name := range prev {
		if _, still := current[name]; !still {
			w.sink.Broadcast(NewEvent(EventSessionRemoved, name, nil))
		}
	}
}
