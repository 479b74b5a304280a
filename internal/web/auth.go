package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errTokenMissing = errors.New("missing access token")
	errTokenInvalid = errors.New("invalid access token")
)

// verifyToken checks the request credential against the configured token
// and returns the accepted credential. An empty configured token disables
// auth entirely (local-only mode) and yields "". The query parameter takes
// precedence over the Authorization header: head-unit websocket clients
// cannot set headers, so ?token= is the primary channel and a bearer
// header is the REST convenience.
func (s *Server) verifyToken(r *http.Request) (string, error) {
	configured := s.cfg.Token
	if configured == "" {
		return "", nil
	}

	supplied := requestToken(r)
	if supplied == "" {
		return "", errTokenMissing
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) != 1 {
		return "", errTokenInvalid
	}
	return supplied, nil
}

// requestToken extracts the credential a client supplied, query parameter
// first, then the Authorization header.
func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// requireAuth verifies the request and writes the 401 itself on failure,
// so handlers can bail with a one-liner. The response distinguishes an
// absent credential from a mismatched one.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := s.verifyToken(r)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errTokenMissing):
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
	default:
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
	}
	return false
}
