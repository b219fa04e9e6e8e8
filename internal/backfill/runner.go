package backfill

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/training"
	"github.com/rs/zerolog"
)

// EventIngester loads the results of one scheduled event.
type EventIngester interface {
	IngestEvent(ctx context.Context, ev golf.ScheduledEvent) (*ingest.Result, error)
}

// SeasonIngester loads a season of player stats.
type SeasonIngester interface {
	IngestSeason(ctx context.Context, season int) (*ingest.Result, error)
}

// OddsImporter loads one odds archive page.
type OddsImporter interface {
	ImportHistorical(ctx context.Context, archiveYear string, season int) (*ingest.Result, error)
}

// TrainingRunner builds a training matrix.
type TrainingRunner interface {
	Run(ctx context.Context, course, tournament string, seasons []int) ([]training.Row, *training.Summary, error)
}

// Schedule lists the configured events of a season.
type Schedule interface {
	SeasonEvents(season int) []golf.ScheduledEvent
}

// IngestPublisher announces finished ingestion calls.
type IngestPublisher interface {
	PublishIngest(ctx context.Context, summary interface{}) error
}

// RunnerDeps wires the runner to the ingesters. Publisher may be nil.
type RunnerDeps struct {
	Results   EventIngester
	Stats     SeasonIngester
	Odds      OddsImporter
	Training  TrainingRunner
	Schedule  Schedule
	Publisher IngestPublisher
}

// Runner executes backfill specs.
type Runner struct {
	deps   RunnerDeps
	logger zerolog.Logger
}

// NewRunner constructs a runner.
func NewRunner(deps RunnerDeps, logger zerolog.Logger) *Runner {
	return &Runner{
		deps:   deps,
		logger: logger.With().Str("component", "backfill-runner").Logger(),
	}
}

// Run executes the job spec, reporting progress via the Reporter if provided.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) error {
	if reporter == nil {
		reporter = nopReporter{}
	}
	reporter.OnJobStart(spec)

	if spec.DryRun {
		reporter.OnProgress("Dry-run mode: no data will be written", 0, 0)
		reporter.OnJobComplete()
		return nil
	}

	var err error
	switch spec.Type {
	case JobTypeResults:
		err = r.runResults(ctx, spec, reporter)
	case JobTypeStats:
		err = r.runSingle(ctx, reporter, fmt.Sprintf("stats %d", spec.Season), func() (*ingest.Result, error) {
			return r.deps.Stats.IngestSeason(ctx, spec.Season)
		})
	case JobTypeOdds:
		archive := spec.ArchiveYear
		if archive == "" {
			archive = strconv.Itoa(spec.Season)
		}
		err = r.runSingle(ctx, reporter, "odds archive "+archive, func() (*ingest.Result, error) {
			return r.deps.Odds.ImportHistorical(ctx, archive, spec.Season)
		})
	case JobTypeTraining:
		err = r.runTraining(ctx, spec, reporter)
	default:
		err = fmt.Errorf("unsupported job type %s", spec.Type)
	}
	if err != nil {
		reporter.OnJobError(err)
		return err
	}

	reporter.OnJobComplete()
	return nil
}

func (r *Runner) runResults(ctx context.Context, spec JobSpec, reporter Reporter) error {
	events := r.deps.Schedule.SeasonEvents(spec.Season)
	if len(events) == 0 {
		reporter.OnProgress(fmt.Sprintf("No scheduled events for %d", spec.Season), 0, 0)
		return nil
	}

	total := &ingest.Result{Source: "results"}
	for idx, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		reporter.OnStepStart(ev.Name, idx, len(events))

		res, err := r.deps.Results.IngestEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("ingest %s %d: %w", ev.Name, ev.Season, err)
		}
		total.Add(res)

		reporter.OnStepDone(ev.Name, res)
		reporter.OnProgress(fmt.Sprintf("Processed %s", ev.Name), idx+1, len(events))
	}

	r.publish(ctx, total)
	return nil
}

func (r *Runner) runSingle(ctx context.Context, reporter Reporter, label string, fn func() (*ingest.Result, error)) error {
	reporter.OnStepStart(label, 0, 1)
	res, err := fn()
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	reporter.OnStepDone(label, res)
	reporter.OnProgress("Processed "+label, 1, 1)
	r.publish(ctx, res)
	return nil
}

func (r *Runner) runTraining(ctx context.Context, spec JobSpec, reporter Reporter) error {
	if spec.Course == "" && spec.Tournament == "" {
		return fmt.Errorf("training job requires a course or tournament")
	}
	label := fmt.Sprintf("training %s/%s", spec.Course, spec.Tournament)
	reporter.OnStepStart(label, 0, 1)

	_, summary, err := r.deps.Training.Run(ctx, spec.Course, spec.Tournament, spec.Seasons)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	reporter.OnProgress(fmt.Sprintf("Built %d rows from %d events", summary.Rows, summary.Events), 1, 1)
	return nil
}

func (r *Runner) publish(ctx context.Context, res *ingest.Result) {
	if r.deps.Publisher == nil || res == nil {
		return
	}
	if err := r.deps.Publisher.PublishIngest(ctx, res); err != nil {
		r.logger.Warn().Err(err).Str("source", res.Source).Msg("failed to publish ingest summary")
	}
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec)                {}
func (nopReporter) OnStepStart(string, int, int)      {}
func (nopReporter) OnStepDone(string, *ingest.Result) {}
func (nopReporter) OnProgress(string, int, int)       {}
func (nopReporter) OnJobComplete()                    {}
func (nopReporter) OnJobError(error)                  {}
