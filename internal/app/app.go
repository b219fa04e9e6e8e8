// Package app assembles the service's components from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/cache"
	"github.com/fortuna/caddie/internal/config"
	"github.com/fortuna/caddie/internal/features"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest/golfodds"
	"github.com/fortuna/caddie/internal/ingest/pgatour"
	"github.com/fortuna/caddie/internal/publisher"
	"github.com/fortuna/caddie/internal/reconciliation"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/internal/store/repository"
	"github.com/fortuna/caddie/internal/training"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
)

// App holds every wired component. Cache and Publisher are nil when redis is not configured.
type App struct {
	Config  *config.Config
	DB      *store.Database
	Metrics *metrics.Metrics
	Names   *golf.Normalizer

	Cache     *cache.RedisCache
	Publisher *publisher.RedisStreamPublisher

	Tournaments *repository.TournamentRepository
	Stats       *repository.StatsRepository
	Odds        *repository.OddsRepository

	PGATour         *pgatour.Client
	OddsClient      *golfodds.Client
	ResultsIngester *pgatour.ResultsIngester
	StatsIngester   *pgatour.StatsIngester
	OddsIngester    *golfodds.Ingester
	OddsCleaner     *reconciliation.OddsNameCleaner

	Engine   *features.Engine
	Builder  *training.Builder
	History  *training.HistorySelector
	Pipeline *training.Pipeline

	Jobs   *backfill.Repository
	Runner *backfill.Runner

	logger zerolog.Logger
}

// New connects the database, applies migrations and wires every component.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*App, error) {
	db, err := store.NewDatabase(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Metrics:     m,
		Names:       cfg.Normalizer(),
		Tournaments: repository.NewTournamentRepository(db),
		Stats:       repository.NewStatsRepository(db),
		Odds:        repository.NewOddsRepository(db),
		Jobs:        backfill.NewRepository(db),
		logger:      logger,
	}

	var oddsCache golfodds.Cache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running without cache and streams")
		} else {
			a.Cache = rc
			a.Publisher = publisher.NewRedisStreamPublisher(rc.Client())
			oddsCache = rc
		}
	}

	a.PGATour = pgatour.NewClient(pgatour.ClientConfig{
		Endpoint:           cfg.PGATour.Endpoint,
		APIKey:             cfg.PGATour.APIKey,
		Timeout:            cfg.HTTP.Timeout,
		RequestInterval:    cfg.PGATour.RequestInterval,
		InsecureSkipVerify: cfg.PGATour.InsecureSkipVerify,
	}, logger, m)
	a.OddsClient = golfodds.NewClient(golfodds.ClientConfig{
		Timeout:  cfg.HTTP.Timeout,
		RenderJS: cfg.Odds.RenderJS,
	}, logger, m)

	a.ResultsIngester = pgatour.NewResultsIngester(a.PGATour, a.Tournaments, a.Names, m, logger)
	a.StatsIngester = pgatour.NewStatsIngester(a.PGATour, a.Stats, a.Names, cfg.PGATour.StatConcurrency, m, logger)
	a.OddsIngester = golfodds.NewIngester(a.OddsClient, a.Odds, oddsCache, a.Names, golfodds.Config{
		ArchiveURL: cfg.Odds.ArchiveURL,
		CurrentURL: cfg.Odds.CurrentURL,
		TableIndex: cfg.Odds.TableIndex,
		RenderJS:   cfg.Odds.RenderJS,
		CurrentTTL: cfg.Odds.CurrentTTL,
		Excluded:   cfg.Odds.ExcludedEvents,
	}, m, logger)
	a.OddsCleaner = reconciliation.NewOddsNameCleaner(a.Odds, a.Names, logger)

	a.Engine = features.NewEngine(a.Tournaments, features.Config{
		CutWindowMonths:   cfg.Features.CutWindowMonths,
		FormWindowMonths:  cfg.Features.FormWindowMonths,
		CourseWindowYears: cfg.Features.CourseWindowYears,
	}, m, logger)
	a.Builder = training.NewBuilder(a.Tournaments, a.Stats, a.Odds, a.Engine, m, logger)
	a.History = training.NewHistorySelector(a.Tournaments)

	a.Pipeline = training.NewPipeline(a.History, a.Builder, a.trainingPublisher(), logger)
	a.Runner = backfill.NewRunner(backfill.RunnerDeps{
		Results:   a.ResultsIngester,
		Stats:     a.StatsIngester,
		Odds:      a.OddsIngester,
		Training:  a.Pipeline,
		Schedule:  cfg,
		Publisher: a.IngestPublisher(),
	}, logger)

	return a, nil
}

// IngestPublisher returns the stream publisher, or a nil interface without redis.
func (a *App) IngestPublisher() backfill.IngestPublisher {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher
}

func (a *App) trainingPublisher() training.Publisher {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher
}

// HealthChecks returns a named check per external dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": a.DB.HealthCheck,
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.HealthCheck
	}
	return checks
}

// Close releases clients and connections.
func (a *App) Close() {
	if a.OddsClient != nil {
		a.OddsClient.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing redis")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing database")
	}
}

// ShutdownTimeout bounds graceful shutdown of the binaries.
const ShutdownTimeout = 10 * time.Second
