package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"notespresence/internal/config"
	"notespresence/internal/logging"
	"notespresence/internal/profiles"
	"notespresence/internal/server"
	"notespresence/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML or TOML)")
		addr       = flag.String("addr", "", "address for the web server; overrides profile_service.addr")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ps := cfg.ProfileService
	if *addr != "" {
		ps.Addr = *addr
	}

	base, err := logging.New(cfg.Agent.LogLevel, cfg.Agent.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = base.Sync() }()
	logger := logging.Component(base, "profiled")

	profileStore, err := storage.NewProfileStorage(filepath.Join(ps.DataDirectory, "profiles.json"))
	if err != nil {
		logger.Fatalw("initialise profile storage", "error", err)
	}
	presenceStore, err := storage.NewPresenceStorage(filepath.Join(ps.DataDirectory, "presence_history.json"), ps.MaxHistory)
	if err != nil {
		logger.Fatalw("initialise presence storage", "error", err)
	}

	svc := profiles.NewService(
		profileStore,
		presenceStore,
		time.Duration(ps.StaleAfterSeconds)*time.Second,
		time.Duration(ps.SweepIntervalSeconds)*time.Second,
		logging.Component(base, "profiles"),
	)
	if err := svc.Start(); err != nil {
		logger.Fatalw("start profile service", "error", err)
	}
	defer svc.Stop()

	srv := server.New(ps.Addr, svc, time.Duration(ps.PushIntervalSeconds)*time.Second, logging.Component(base, "server"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("server shutdown", "error", err)
		}
	}()

	logger.Infow("profile service listening", "addr", ps.Addr, "profiles", len(svc.Profiles()))
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("server error", "error", err)
	}
}
