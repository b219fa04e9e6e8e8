package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortuna/caddie/internal/app"
	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/config"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/training"
	"github.com/fortuna/caddie/pkg/logger"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	appName    = "caddie-backfill"
	appVersion = "1.0.0"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	var (
		configPath  = flag.String("config", os.Getenv("CADDIE_CONFIG"), "YAML config file")
		kind        = flag.String("kind", "", "Job kind: results, stats, odds or training")
		season      = flag.Int("season", 0, "Season to backfill (results, stats, odds)")
		archiveYear = flag.String("archive", "", "Odds archive page year, defaults to -season")
		course      = flag.String("course", "", "Course for training history")
		tournament  = flag.String("tournament", "", "Tournament for training history")
		seasons     = flag.String("seasons", "", "Comma separated seasons for training (default all)")
		csvOut      = flag.String("out", "", "Write the training matrix as CSV to this file")
		dryRun      = flag.Bool("dry-run", false, "Dry run (do not write to DB)")
		pretty      = flag.Bool("pretty", true, "Human readable log output")
	)
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Pretty = cfg.Log.Pretty || *pretty
	l := logger.New(cfg.Log).With().Str("app", appName).Logger()

	trainingSeasons, err := backfill.ParseSeasons(*seasons)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid -seasons")
	}
	req := backfill.Request{
		Type:        backfill.JobType(*kind),
		Season:      *season,
		ArchiveYear: *archiveYear,
		Course:      *course,
		Tournament:  *tournament,
		Seasons:     trainingSeasons,
		DryRun:      *dryRun,
	}
	if err := req.Validate(); err != nil {
		flag.Usage()
		l.Fatal().Err(err).Msg("invalid arguments")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, metrics.New(), l)
	if err != nil {
		l.Fatal().Err(err).Msg("initialize")
	}
	defer a.Close()

	l.Info().Str("version", appVersion).Str("kind", *kind).Msg("starting backfill")

	spec := backfill.JobSpec{
		Type:        req.Type,
		Season:      req.Season,
		ArchiveYear: req.ArchiveYear,
		Course:      req.Course,
		Tournament:  req.Tournament,
		Seasons:     req.Seasons,
		DryRun:      req.DryRun,
	}

	if req.Type == backfill.JobTypeTraining && *csvOut != "" && !req.DryRun {
		if err := writeTraining(ctx, a, spec, *csvOut, l); err != nil {
			l.Fatal().Err(err).Msg("training export failed")
		}
		return
	}

	if err := a.Runner.Run(ctx, spec, &consoleReporter{logger: l, dryRun: req.DryRun}); err != nil {
		l.Fatal().Err(err).Msg("backfill failed")
	}
	l.Info().Msg("backfill completed successfully")
}

func writeTraining(ctx context.Context, a *app.App, spec backfill.JobSpec, path string, l zerolog.Logger) error {
	rows, summary, err := a.Pipeline.Run(ctx, spec.Course, spec.Tournament, spec.Seasons)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := training.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	l.Info().Str("file", path).Int("rows", summary.Rows).Int("positives", summary.Positives).Msg("training matrix written")
	return nil
}

type consoleReporter struct {
	logger zerolog.Logger
	dryRun bool
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	c.logger.Info().Str("type", string(spec.Type)).Bool("dry_run", c.dryRun).Msg("job starting")
}

func (c *consoleReporter) OnStepStart(label string, index int, total int) {
	c.logger.Info().Msgf("[%d/%d] %s", index+1, total, label)
}

func (c *consoleReporter) OnStepDone(label string, result *ingest.Result) {
	if result == nil {
		return
	}
	c.logger.Info().
		Str("step", label).
		Int("fetched", result.Fetched).
		Int("parsed", result.Parsed).
		Int("inserted", result.Inserted).
		Bool("degraded", result.Degraded).
		Msg("step done")
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.logger.Debug().Int("current", current).Int("total", total).Msg(message)
}

func (c *consoleReporter) OnJobComplete() {
	c.logger.Info().Msg("job complete")
}

func (c *consoleReporter) OnJobError(err error) {
	c.logger.Error().Err(err).Msg("job error")
}
