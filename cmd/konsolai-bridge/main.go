// Command konsolai-bridge exposes Konsolai sessions to remote clients:
// a REST/WebSocket bridge for companion apps, vehicle head units, and
// voice interfaces.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/konsolai/bridge/internal/config"
	"github.com/konsolai/bridge/internal/logging"
	"github.com/konsolai/bridge/internal/session"
	"github.com/konsolai/bridge/internal/tmux"
	"github.com/konsolai/bridge/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "konsolai-bridge:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("konsolai-bridge", flag.ExitOnError)
	listen := fs.String("listen", "", "Listen address (overrides config)")
	configPath := fs.String("config", "", "Config file path")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")

	fs.Usage = func() {
		fmt.Println("Usage: konsolai-bridge [options]")
		fmt.Println()
		fmt.Println("Bridge service for remote Konsolai session control.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logging.Init(logging.Config{
		LogDir: cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompSession)

	manager := tmux.NewManager()
	store := session.NewPersistedStore(cfg.SessionsFile)
	registry := session.NewRegistry(store, manager)
	broadcaster := web.NewBroadcaster()
	handler := session.NewEventHandler(registry, broadcaster)

	listener := session.NewHookListener(cfg.SocketDir, handler.HandleEvent)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("start hook listener: %w", err)
	}
	defer listener.Stop()

	if watcher, err := session.NewStoreWatcher(store, broadcaster); err != nil {
		log.Warn("store_watcher_disabled", slog.String("error", err.Error()))
	} else {
		go watcher.Start()
		defer watcher.Stop()
	}

	srv := web.NewServer(web.Config{
		ListenAddr:          cfg.Listen,
		Token:               cfg.Token,
		VehicleSessionLimit: cfg.VehicleSessionLimit,
		TTSMaxChars:         cfg.TTSMaxChars,
	}, registry, manager, broadcaster)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info("bridge_started", slog.String("listen", cfg.Listen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting_down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
