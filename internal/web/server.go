package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/konsolai/bridge/internal/logging"
	"github.com/konsolai/bridge/internal/session"
	"github.com/konsolai/bridge/internal/vehicle"
)

// Config defines runtime options for the bridge HTTP server.
type Config struct {
	ListenAddr          string
	Token               string
	VehicleSessionLimit int
	TTSMaxChars         int

	// RateLimit caps API requests per second; 0 uses a permissive
	// default.
	RateLimit float64
	RateBurst int
}

// SessionSource is the registry surface the API consumes.
type SessionSource interface {
	ListSessions(ctx context.Context) ([]session.SessionSummary, error)
	GetSession(ctx context.Context, name string) (*session.SessionDetail, error)
}

// Controller executes lifecycle operations against the terminal
// multiplexer.
type Controller interface {
	CapturePane(ctx context.Context, name string, lines int) (string, error)
	SendKeys(ctx context.Context, name, keys string) error
	SendText(ctx context.Context, name, text string) error
	SendCtrlC(ctx context.Context, name string) error
	KillSession(ctx context.Context, name string) error
	CreateSession(ctx context.Context, name, workingDir, command string) error
}

// Server wraps the bridge's HTTP/WebSocket surface.
type Server struct {
	cfg         Config
	httpServer  *http.Server
	sessions    SessionSource
	ctrl        Controller
	broadcaster *Broadcaster
	voice       *vehicle.VoiceRouter
	baseCtx     context.Context
	cancelBase  context.CancelFunc
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, sessions SessionSource, ctrl Controller, broadcaster *Broadcaster) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8472"
	}
	if cfg.TTSMaxChars <= 0 {
		cfg.TTSMaxChars = 500
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 100
	}

	s := &Server{
		cfg:         cfg,
		sessions:    sessions,
		ctrl:        ctrl,
		broadcaster: broadcaster,
		voice:       vehicle.NewVoiceRouter(ctrl),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByName)
	mux.HandleFunc("/api/setup/info", s.handleSetupInfo)
	mux.HandleFunc("/api/setup/qr", s.handleSetupQR)
	mux.HandleFunc("/api/vehicle/dashboard", s.handleVehicleDashboard)
	mux.HandleFunc("/api/vehicle/voice", s.handleVehicleVoice)
	mux.HandleFunc("/api/vehicle/android-auto/sessions", s.handleAndroidAutoSessions)
	mux.HandleFunc("/api/vehicle/carplay/sessions", s.handleCarPlaySessions)
	mux.HandleFunc("/api/vehicle/carplay/siri-shortcut", s.handleSiriShortcut)
	mux.HandleFunc("/api/ws", s.handleWS)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	handler := withRecover(withRateLimit(limiter, mux))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. Long-lived websocket connections
// may hold up graceful shutdown, so a timed-out shutdown falls back to a
// hard close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":          true,
		"subscribers": s.broadcaster.Count(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withRateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("bridge-server(addr=%s)", s.cfg.ListenAddr)
}
