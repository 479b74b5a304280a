// Package config loads and persists bridge settings as TOML.
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds bridge service settings, stored at
// ~/.config/konsolai/bridge.toml.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `toml:"listen"`

	// Token guards the REST and WebSocket APIs. Empty disables auth
	// (local-only mode).
	Token string `toml:"token"`

	// SessionsFile is the desktop app's persisted session store.
	SessionsFile string `toml:"sessions_file"`

	// SocketDir holds the per-session hook sockets.
	SocketDir string `toml:"socket_dir"`

	// VehicleSessionLimit caps sessions shown on vehicle displays.
	VehicleSessionLimit int `toml:"vehicle_session_limit"`

	// TTSMaxChars caps spoken voice responses.
	TTSMaxChars int `toml:"tts_max_chars"`

	// Log configures file logging.
	Log LogSettings `toml:"log"`
}

// LogSettings mirrors the logging package's knobs.
type LogSettings struct {
	Dir    string `toml:"dir"`
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a config with standard paths under the user's home.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Listen:              "127.0.0.1:8472",
		SessionsFile:        filepath.Join(home, ".local", "share", "konsolai", "sessions.json"),
		SocketDir:           filepath.Join(home, ".konsolai", "sessions"),
		VehicleSessionLimit: 5,
		TTSMaxChars:         500,
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "konsolai", "bridge.toml")
}

// Load reads the config file at path ("" means DefaultPath). A missing
// file produces a default config with a freshly generated token, persisted
// back so reconnecting clients keep working across restarts.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		token, err := generateToken()
		if err != nil {
			return cfg, fmt.Errorf("generate token: %w", err)
		}
		cfg.Token = token
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config with owner-only permissions (it holds the token).
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
