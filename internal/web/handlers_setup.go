package web

import (
	"encoding/json"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
)

// pairingVersion tags the QR payload format for the companion apps.
const pairingVersion = 1

// handleSetupInfo serves GET /api/setup/info: the connection settings a
// configured client needs.
func (s *Server) handleSetupInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	host, port := splitListenAddr(s.cfg.ListenAddr)
	writeJSON(w, http.StatusOK, map[string]any{
		"host":                  host,
		"port":                  port,
		"vehicle_session_limit": s.cfg.VehicleSessionLimit,
		"tts_max_chars":         s.cfg.TTSMaxChars,
	})
}

// handleSetupQR serves GET /api/setup/qr: an HTML pairing page embedding
// the connection payload (host, port, token) so the Android or CarPlay app
// configures itself in one step. Unauthenticated on purpose: the page IS
// the credential handout, reachable only from the loopback bind unless the
// operator chose otherwise.
func (s *Server) handleSetupQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	host, port := splitListenAddr(s.cfg.ListenAddr)
	payload, err := json.Marshal(map[string]any{
		"host":    host,
		"port":    port,
		"token":   s.cfg.Token,
		"version": pairingVersion,
	})
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to build pairing payload")
		return
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Konsolai Bridge Setup</title></head>
<body style="font-family:sans-serif;text-align:center;padding:40px">
    <h1>Konsolai Bridge</h1>
    <p>Enter this pairing payload in the Konsolai Android or CarPlay app:</p>
    <pre style="font-size:14px;background:#f0f0f0;padding:16px;border-radius:8px">%s</pre>
    <p style="color:#666;font-size:12px;margin-top:24px">
        Connection: %s:%d
    </p>
</body>
</html>`, html.EscapeString(string(payload)), html.EscapeString(host), port)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// splitListenAddr breaks a bind address into host and numeric port,
// falling back to the defaults when the address is irregular.
func splitListenAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1", 8472
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 8472
	}
	return host, port
}
