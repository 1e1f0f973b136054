package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trafficwarden/internal/adapter"
	"trafficwarden/internal/config"
	"trafficwarden/internal/handler"
	"trafficwarden/internal/hub"
	"trafficwarden/internal/repository/sqlite"
	"trafficwarden/internal/service"
)

func main() {
	configPath := flag.String("config", "", "config file path (overrides search)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var (
		cfg  *config.Config
		from string
		err  error
	)
	if *configPath != "" {
		cfg, from, err = config.LoadFromPath(*configPath)
	} else {
		cfg, from, err = config.Load()
	}
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if from != "" {
		log.WithField("path", from).Info("config loaded")
	} else {
		log.Info("no config file found, using defaults")
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, staying at info")
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer repo.Close()
	log.WithField("path", cfg.Database.Path).Info("database opened")

	bus := service.NewEventBus(log)

	sseHub := hub.New(log)
	sseHub.Attach(bus)
	go sseHub.Run()

	// Traffic control backend, local or over SSH per config.
	var runner adapter.CommandRunner
	if cfg.TrafficControl.Mode == "ssh" {
		runner = &adapter.SSHRunner{
			Host:    cfg.TrafficControl.Host,
			Port:    cfg.TrafficControl.Port,
			User:    cfg.TrafficControl.User,
			KeyPath: cfg.TrafficControl.KeyPath,
			Timeout: config.DurationOr(cfg.TrafficControl.Timeout, 10*time.Second),
		}
	} else {
		runner = adapter.LocalRunner{}
	}
	tc := adapter.NewTCAdapter(runner, log)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := tc.TestConnection(startupCtx); err != nil {
		log.WithError(err).Warn("traffic control backend not reachable, policy application will fail")
	}
	startupCancel()

	monitor := adapter.NewPingMonitor(
		cfg.ProbeTargets(),
		cfg.Testing.PingCount,
		config.DurationOr(cfg.Testing.PingTimeout, 3*time.Second),
		cfg.Testing.PingPrivileged,
		log,
	)
	generators := &adapter.IperfFactory{BinPath: cfg.Testing.IperfPath, Log: log}
	var prober adapter.TargetProber
	if cfg.Testing.Preflight {
		prober = &adapter.NmapProber{}
	}

	policies := service.NewPolicyService(repo, bus, log)
	classes := service.NewTrafficClassService(repo, bus, log)
	engine := service.NewPolicyApplicationEngine(repo, tc, bus, cfg.Capacities(), log)
	compliance := service.NewComplianceTestingEngine(
		generators, monitor, prober,
		config.DurationOr(cfg.Testing.SampleInterval, time.Second),
		log,
	)

	api := handler.NewAPIHandler(policies, classes, engine, compliance, tc, log)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /api/events", sseHub)

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     handler.Chain(mux, handler.Recover(log), handler.Logger(log)),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
	log.Info("server stopped")
}
