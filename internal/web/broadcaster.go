package web

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/konsolai/bridge/internal/logging"
	"github.com/konsolai/bridge/internal/session"
)

var wsLog = logging.ForComponent(logging.CompWeb)

// subscriberHighWater triggers a warning when the subscriber set grows
// past it; broken connections should be purged on the next broadcast.
const subscriberHighWater = 128

// wsConn is the minimal websocket surface the broadcaster needs; tests
// substitute fakes.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Subscriber is one registered client connection. Writes are serialized
// through its mutex because gorilla conns allow only one concurrent
// writer.
type Subscriber struct {
	id   uint64
	conn wsConn
	mu   sync.Mutex
}

// Send delivers one text frame to this subscriber.
func (s *Subscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Broadcaster fans out event envelopes to every registered subscriber and
// purges the ones whose sends fail. It implements session.EventSink.
type Broadcaster struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]*Subscriber
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[uint64]*Subscriber)}
}

// Accept registers a connection. Each connection instance registers once;
// there is no deduplication.
func (b *Broadcaster) Accept(conn wsConn) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{id: b.nextID, conn: conn}
	b.subscribers[sub.id] = sub
	if len(b.subscribers) > subscriberHighWater {
		wsLog.Warn("subscriber_high_water", slog.Int("count", len(b.subscribers)))
	}
	wsLog.Info("subscriber_connected", slog.Int("total", len(b.subscribers)))
	return sub
}

// Disconnect removes a subscriber. Safe to call more than once.
func (b *Broadcaster) Disconnect(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; !ok {
		return
	}
	delete(b.subscribers, sub.id)
	wsLog.Info("subscriber_disconnected", slog.Int("total", len(b.subscribers)))
}

// Count returns the current subscriber count.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Broadcast serializes the envelope once and delivers it to a snapshot of
// the current subscribers. Sends happen outside the lock so one slow
// subscriber cannot block Accept or Disconnect; failed subscribers are
// removed afterward. One subscriber's failure never aborts delivery to
// the rest.
func (b *Broadcaster) Broadcast(ev session.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		wsLog.Warn("event_marshal_failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	var failed []*Subscriber
	for _, sub := range snapshot {
		if err := sub.Send(payload); err != nil {
			failed = append(failed, sub)
		}
	}
	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	for _, sub := range failed {
		if _, ok := b.subscribers[sub.id]; ok {
			delete(b.subscribers, sub.id)
			_ = sub.conn.Close()
		}
	}
	b.mu.Unlock()
	wsLog.Info("subscribers_purged", slog.Int("failed", len(failed)))
}
