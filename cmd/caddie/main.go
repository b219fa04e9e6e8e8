package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortuna/caddie/internal/api/rest"
	"github.com/fortuna/caddie/internal/api/websocket"
	"github.com/fortuna/caddie/internal/app"
	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/config"
	"github.com/fortuna/caddie/internal/scheduler"
	"github.com/fortuna/caddie/pkg/logger"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	serviceName    = "caddie"
	serviceVersion = "1.0.0"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.New(cfg.Log)
	logger.SetGlobalLogger(l)
	l.Info().Str("service", serviceName).Str("version", serviceVersion).Msg("starting")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	a, err := app.New(ctx, cfg, m, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	wsServer := websocket.NewServer(cfg.HTTP.WSPort, l)
	go func() {
		if err := wsServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("websocket server error")
		}
	}()

	backfillService := backfill.NewService(a.Jobs, a.Runner, wsServer.Hub(), m, l)
	backfillService.Start()
	l.Info().Msg("backfill service started")

	var sched *scheduler.Orchestrator
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewOrchestrator(cfg.Scheduler, scheduler.Deps{
			Backfill:  backfillService,
			Results:   a.ResultsIngester,
			Odds:      a.OddsIngester,
			Cleaner:   a.OddsCleaner,
			Schedule:  cfg,
			Publisher: a.IngestPublisher(),
		}, l)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create scheduler")
		}
		sched.Start()
	}

	restServer := rest.NewServer(cfg.HTTP.Port, cfg.HTTP.Timeout, rest.Deps{
		Events:   a.Tournaments,
		History:  a.History,
		Features: a.Engine,
		Training: a.Pipeline,
		Odds:     a.OddsIngester,
		Cleaner:  a.OddsCleaner,
		Backfill: backfillService,
		Checks:   a.HealthChecks(),
		Metrics:  m.Handler(),
	}, l)
	go func() {
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("rest server error")
			cancel()
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("rest server shutdown error")
	}
	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("backfill shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("websocket server shutdown error")
	}

	l.Info().Msg("stopped")
}
