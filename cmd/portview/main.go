package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"PortView/internal/bridge"
	"PortView/internal/config"
	"PortView/internal/event"
	"PortView/internal/feed"
	"PortView/internal/observability"
	"PortView/internal/projection"
	"PortView/internal/server"
	"PortView/internal/tws"
	"PortView/internal/twssim"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		logger := observability.NewLogger("main")
		logger.Fatal().Err(err).Msg("load config")
	}

	// The component loggers read the level from the environment; the file
	// setting fills in only when nothing is exported.
	if os.Getenv("PORTVIEW_LOG_LEVEL") == "" {
		os.Setenv("PORTVIEW_LOG_LEVEL", cfg.Logging.Level)
	}
	log := observability.NewLogger("main")
	log.Info().Msg("PortView starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- NATS (optional) ---
	// An empty URL runs without the downstream bridge; the publisher
	// no-ops on a nil connection.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = bridge.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect")
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("nats connected")
	}

	// --- Upstream transport ---
	// The relay buffers events the transport emits before the feed
	// subscription exists, then replays them in order.
	relay := event.NewRelay()

	var client tws.Client
	var sim *twssim.Simulator
	accountID := cfg.Account.ID
	if cfg.Sim.Enabled {
		sim = twssim.New(twssim.Config{
			AccountID:    accountID,
			Seed:         cfg.Sim.Seed,
			TickInterval: cfg.Sim.TickInterval,
		}, relay)
		client = sim
		if accountID == "" {
			accountID = "DU0000001"
		}
		log.Info().Str("account", accountID).Msg("scripted upstream enabled")
	} else {
		log.Fatal().Msg("no upstream transport: enable the simulator or attach a terminal session")
	}

	// --- Snapshot consumers ---
	pub := bridge.NewPublisher(nc, cfg.NATS.SubjectPrefix, func() string { return accountID }, metrics)
	srv := server.New(cfg.Server.Addr, health, metrics)

	// --- Feed subscription ---
	wd := feed.DefaultWatchdogConfig()
	if cfg.Watchdog.Interval > 0 {
		wd.Interval = cfg.Watchdog.Interval
	}
	if cfg.Watchdog.MetadataTimeout > 0 {
		wd.MetadataTimeout = cfg.Watchdog.MetadataTimeout
	}
	if cfg.Watchdog.FXTimeout > 0 {
		wd.FXTimeout = cfg.Watchdog.FXTimeout
	}
	if cfg.Watchdog.WarnCooldown > 0 {
		wd.WarnCooldown = cfg.Watchdog.WarnCooldown
	}

	sub := feed.Subscribe(client,
		func(snap *projection.PortfolioSnapshot) {
			srv.OnSnapshot(snap)
			pub.Publish(snap)
		},
		feed.WithAccountID(accountID),
		feed.WithFXTolerance(cfg.Feed.FXTolerance),
		feed.WithWatchdogConfig(wd),
		feed.WithMetrics(metrics),
	)
	relay.Attach(sub)

	// --- Goroutines ---
	errChan := make(chan error, 1)

	// 1. HTTP server (health, metrics, snapshot JSON, websocket stream).
	go func() {
		errChan <- srv.Run(ctx)
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("subject", pub.Subject()).
		Msg("PortView ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Cancel quotes and the account stream first so the upstream stops
	// producing, then stop the transport and the HTTP surface.
	sub.Unsubscribe()
	if sim != nil {
		sim.Stop()
	}
	cancel()
	if nc != nil {
		nc.Drain()
	}

	log.Info().Msg("PortView shutdown complete")
}
