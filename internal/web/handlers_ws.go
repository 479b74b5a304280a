package web

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// closeUnauthorized is the close code sent on a token mismatch, distinct
// from normal closure so clients can tell auth failures from network
// drops.
const closeUnauthorized = 4001

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// handleWS upgrades a subscriber connection, registers it with the
// broadcaster, and services keepalive pings until the client goes away.
// Clients receive every envelope for every session; there is no
// per-subscriber filtering.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	_, authErr := s.verifyToken(r)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if authErr != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeUnauthorized, "unauthorized"), deadline)
		_ = conn.Close()
		return
	}

	sub := s.broadcaster.Accept(conn)
	defer s.broadcaster.Disconnect(sub)
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				wsLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		// Clients send "ping" for keepalive; everything else inbound is
		// ignored.
		if strings.EqualFold(strings.TrimSpace(string(payload)), "ping") {
			if err := sub.Send([]byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
	}
}
