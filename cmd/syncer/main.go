package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"aparthotel/internal/adapters/ical"
	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/app"
	"aparthotel/internal/bootstrap"
	"aparthotel/internal/shared"
)

func main() {
	once := flag.Bool("once", false, "sync every active integration once and exit")
	only := flag.Int64("integration", 0, "sync a single integration id and exit")
	flag.Parse()

	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "syncer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("workers", cfg.SyncWorkers).
		Dur("interval", cfg.SyncInterval).
		Dur("fetch_timeout", cfg.FetchTimeout).
		Msg("syncer starting")

	if cfg.Store == "memory" {
		log.Fatal().Msg("syncer needs a shared store; set STORE=mysql")
	}
	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open dependencies failed")
	}
	defer deps.Close()

	engine := app.NewSyncEngine(deps.Store, ical.New(cfg.FetchTimeout, cfg.FetchRPS), deps.Locker, deps.Publisher, cfg.SyncLockTTL)
	sched := app.NewSyncScheduler(engine, deps.Store, cfg.SyncWorkers)

	switch {
	case *only > 0:
		res, err := engine.Sync(ctx, *only)
		if err != nil {
			log.Error().Err(err).Int64("integration_id", *only).Msg("sync failed")
			deps.Close()
			os.Exit(1)
		}
		log.Info().Int64("integration_id", *only).Int("added", res.Added).Int("removed", res.Removed).
			Int("conflicts", len(res.Conflicts)).Msg("sync completed")
	case *once:
		sum, err := sched.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sync round failed")
			deps.Close()
			os.Exit(1)
		}
		if sum.Failed > 0 {
			deps.Close()
			os.Exit(2)
		}
	default:
		sched.Run(ctx, cfg.SyncInterval)
	}
}
