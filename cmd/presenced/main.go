package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notespresence/internal/config"
	"notespresence/internal/logging"
	"notespresence/internal/mainloop"
	"notespresence/internal/models"
	"notespresence/internal/monitor"
	"notespresence/internal/notify"
	"notespresence/internal/reachability"
	"notespresence/internal/sink"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to configuration file (YAML or TOML)")
		token        = flag.String("token", "", "session token; overrides agent.token")
		forceOffline = flag.Bool("force-offline", false, "report offline on every tick regardless of link state")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *token != "" {
		cfg.Agent.Token = *token
	}

	base, err := logging.New(cfg.Agent.LogLevel, cfg.Agent.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = base.Sync() }()
	logger := logging.Component(base, "presenced")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer, closeWriter, err := buildWriter(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("initialise presence sink", "sink", cfg.Agent.Sink, "error", err)
	}
	defer closeWriter()

	loop := mainloop.New()
	defer loop.Close()

	dispatcher, err := sink.NewDispatcher(
		writer,
		loop,
		cfg.Agent.Workers,
		time.Duration(cfg.Agent.WriteTimeoutSeconds)*time.Second,
		logging.Component(base, "sink"),
	)
	if err != nil {
		logger.Fatalw("initialise dispatcher", "error", err)
	}
	defer dispatcher.Close()

	var notifier monitor.Notifier = notify.Log{Logger: logging.Component(base, "notify")}
	if cfg.Agent.Interactive {
		notifier = notify.NewTerminal(os.Stdin, os.Stdout, loop, logging.Component(base, "notify"))
	}

	var probe reachability.Probe = reachability.NewInterfaceProbe()
	if *forceOffline {
		probe = reachability.NewStatic(models.Offline)
	}

	mon := monitor.New(
		loop,
		probe,
		dispatcher,
		notifier,
		notify.NewSettings(),
		logging.Component(base, "monitor"),
		monitor.Options{
			Interval:      time.Duration(cfg.Agent.IntervalMS) * time.Millisecond,
			Token:         cfg.Agent.Token,
			RepeatPrompts: cfg.Agent.PromptPolicy == config.PromptEveryTick,
		},
	)
	if err := loop.Invoke(mon.Start); err != nil {
		logger.Fatalw("start monitor", "error", err)
	}
	logger.Infow("presence agent running", "sink", cfg.Agent.Sink, "interval_ms", cfg.Agent.IntervalMS)

	<-ctx.Done()
	if err := loop.Invoke(mon.Stop); err != nil && !errors.Is(err, mainloop.ErrClosed) {
		logger.Warnw("stop monitor", "error", err)
	}
}

func buildWriter(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (sink.Writer, func(), error) {
	noop := func() {}
	switch cfg.Agent.Sink {
	case config.SinkHTTP:
		w := sink.NewHTTPWriter(cfg.HTTPSink.BaseURL)
		checkProfile(ctx, w, cfg.Agent.Token, logger)
		return w, noop, nil
	case config.SinkRedis:
		w, err := sink.NewRedisWriter(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return w, func() { _ = w.Close() }, nil
	case config.SinkMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		w, err := sink.NewMongoWriter(connectCtx, cfg.Mongo)
		if err != nil {
			return nil, noop, err
		}
		return w, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = w.Close(closeCtx)
		}, nil
	case config.SinkLog:
		return sink.LogWriter{Logger: logger}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown sink %q", cfg.Agent.Sink)
	}
}

// checkProfile looks the token up once so a stale token shows in the log at
// startup rather than as a stream of failed writes.
func checkProfile(ctx context.Context, w *sink.HTTPWriter, token string, logger *zap.SugaredLogger) {
	if token == "" {
		logger.Warn("no session token configured; presence will not be reported")
		return
	}
	profile, err := w.Profile(ctx, token)
	if err != nil {
		logger.Warnw("profile lookup failed", "error", err)
		return
	}
	logger.Infow("reporting presence for profile", "uid", profile.UID, "name", profile.Name)
}
