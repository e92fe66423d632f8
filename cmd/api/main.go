package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "aparthotel/internal/adapters/http_server"
	"aparthotel/internal/adapters/ical"
	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/app"
	"aparthotel/internal/bootstrap"
	"aparthotel/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open dependencies failed")
	}
	defer deps.Close()

	// services
	rates := app.NewRateService(deps.Store, deps.Cache, cfg.CacheTTL)
	engine := app.NewSyncEngine(deps.Store, ical.New(cfg.FetchTimeout, cfg.FetchRPS), deps.Locker, deps.Publisher, cfg.SyncLockTTL)

	// http
	srv := server.New(cfg.FetchTimeout + 10*time.Second)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	observability.Serve(cfg.MetricsAddr, reg)
	srv.MountHandlers(&server.Handlers{
		Apartments:   app.NewApartmentService(deps.Store),
		Availability: app.NewAvailabilityResolver(deps.Store),
		Bookings:     app.NewBookingService(deps.Store, rates, deps.Publisher),
		Rates:        rates,
		Blocks:       app.NewBlockService(deps.Store),
		Integrations: app.NewIntegrationService(deps.Store, engine),
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
