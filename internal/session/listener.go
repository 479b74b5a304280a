package session

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/konsolai/bridge/internal/logging"
)

var hookLog = logging.ForComponent(logging.CompHooks)

// EventCallback receives each decoded hook event together with the socket's
// short session id. ctx is the ingestion task's context; it ends when the
// listener stops.
type EventCallback func(ctx context.Context, sessionID string, event HookEvent)

const (
	scanInterval      = 2 * time.Second
	reconnectInterval = 2 * time.Second

	// taskHighWater triggers a warning when the ingestion task set grows
	// past it; the scan loop should reap dead entries long before.
	taskHighWater = 256
)

// HookListener discovers per-session hook sockets and maintains one
// ingestion goroutine per live socket. Each Konsolai session creates a
// unix socket at {socketDir}/{session-id}.sock; the hook handler binary
// writes newline-delimited JSON events to it.
type HookListener struct {
	socketDir string
	callback  EventCallback

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*ingestTask
}

type ingestTask struct {
	done chan struct{}
}

func (t *ingestTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func NewHookListener(socketDir string, callback EventCallback) *HookListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &HookListener{
		socketDir: socketDir,
		callback:  callback,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*ingestTask),
	}
}

// Start begins the discovery loop. Non-blocking.
func (l *HookListener) Start() error {
	if err := os.MkdirAll(l.socketDir, 0o755); err != nil {
		return err
	}
	l.wg.Add(1)
	go l.scanLoop()
	hookLog.Info("hook_listener_started", slog.String("dir", l.socketDir))
	return nil
}

// Stop cancels the discovery loop and every ingestion goroutine, waits for
// all of them to exit, then clears the bookkeeping. No tasks survive Stop.
func (l *HookListener) Stop() {
	l.cancel()
	l.wg.Wait()
	l.mu.Lock()
	l.tasks = make(map[string]*ingestTask)
	l.mu.Unlock()
}

func (l *HookListener) scanLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		l.scanOnce()
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scanOnce starts ingestion for sockets without a running task and drops
// bookkeeping for finished tasks whose socket has also disappeared. A
// session that drops and re-creates its socket resumes on the next scan.
func (l *HookListener) scanOnce() {
	sockets, err := l.discoverSockets()
	if err != nil {
		hookLog.Warn("socket_scan_failed", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, path := range sockets {
		if task, ok := l.tasks[id]; ok && !task.finished() {
			continue
		}
		task := &ingestTask{done: make(chan struct{})}
		l.tasks[id] = task
		l.wg.Add(1)
		go l.ingest(id, path, task)
	}

	for id, task := range l.tasks {
		if _, alive := sockets[id]; !alive && task.finished() {
			delete(l.tasks, id)
		}
	}

	if len(l.tasks) > taskHighWater {
		hookLog.Warn("ingest_task_high_water", slog.Int("tasks", len(l.tasks)))
	}
}

// discoverSockets returns connectable *.sock entries keyed by filename
// stem. Plain files with a .sock name are not endpoints.
func (l *HookListener) discoverSockets() (map[string]string, error) {
	entries, err := os.ReadDir(l.socketDir)
	if err != nil {
		return nil, err
	}
	sockets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".sock" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&fs.ModeSocket == 0 {
			continue
		}
		sockets[strings.TrimSuffix(name, ".sock")] = filepath.Join(l.socketDir, name)
	}
	return sockets, nil
}

// ingest connects to one session's hook socket and forwards decoded events
// until the listener stops. Connect failures and stream ends retry on a
// fixed interval; there is no backoff growth.
func (l *HookListener) ingest(sessionID, path string, task *ingestTask) {
	defer l.wg.Done()
	defer close(task.done)

	hookLog.Info("hook_socket_ingest_started", slog.String("session", sessionID))
	for {
		if l.ctx.Err() != nil {
			return
		}
		l.readStream(sessionID, path)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(reconnectInterval):
		}
	}
}

func (l *HookListener) readStream(sessionID, path string) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(l.ctx, "unix", path)
	if err != nil {
		// Socket gone or not yet accepting; the caller retries.
		return
	}
	defer conn.Close()

	// Unblock the read when the listener stops. There is no read timeout
	// otherwise: the scanner blocks until data arrives or the peer closes.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-l.ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event HookEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			hookLog.Warn("hook_event_malformed",
				slog.String("session", sessionID),
				slog.String("data", truncateForLog(line, 200)))
			continue
		}
		l.callback(l.ctx, sessionID, event)
	}
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
