// Package scheduler runs the recurring weekly refresh jobs.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/config"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/reconciliation"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job names, usable with RunNow.
const (
	JobStats     = "stats"
	JobResults   = "results"
	JobOdds      = "odds"
	JobCleanOdds = "clean_odds"
)

// Enqueuer queues backfill jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
}

// EventIngester loads the results of one scheduled event.
type EventIngester interface {
	IngestEvent(ctx context.Context, ev golf.ScheduledEvent) (*ingest.Result, error)
}

// WeeklyOdds stores the current week's odds for a tournament.
type WeeklyOdds interface {
	SaveCurrentWeek(ctx context.Context, season int, tournament string) (*ingest.Result, error)
}

// OddsCleaner re-applies the name maps to stored odds.
type OddsCleaner interface {
	Clean(ctx context.Context) (*reconciliation.Stats, error)
}

// Schedule lists the configured events of a season.
type Schedule interface {
	SeasonEvents(season int) []golf.ScheduledEvent
}

// IngestPublisher announces finished ingestion calls.
type IngestPublisher interface {
	PublishIngest(ctx context.Context, summary interface{}) error
}

// Deps wires the orchestrator. Publisher may be nil.
type Deps struct {
	Backfill  Enqueuer
	Results   EventIngester
	Odds      WeeklyOdds
	Cleaner   OddsCleaner
	Schedule  Schedule
	Publisher IngestPublisher
}

// Orchestrator manages scheduled refresh tasks
type Orchestrator struct {
	cron   *cron.Cron
	deps   Deps
	config config.SchedulerConfig
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.Mutex
	tasks map[string]func(context.Context) error
	ctx   context.Context
	stop  context.CancelFunc
}

// NewOrchestrator creates an orchestrator and registers every job with a non-empty spec.
func NewOrchestrator(cfg config.SchedulerConfig, deps Deps, logger zerolog.Logger) (*Orchestrator, error) {
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		cron:   cron.New(cron.WithSeconds()),
		deps:   deps,
		config: cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		stop:   stop,
	}
	o.tasks = map[string]func(context.Context) error{
		JobStats:     o.refreshStats,
		JobResults:   o.refreshResults,
		JobOdds:      o.refreshOdds,
		JobCleanOdds: o.cleanOdds,
	}

	specs := map[string]string{
		JobStats:     cfg.StatsSpec,
		JobResults:   cfg.ResultsSpec,
		JobOdds:      cfg.OddsSpec,
		JobCleanOdds: cfg.CleanOddsSpec,
	}
	for _, name := range []string{JobStats, JobResults, JobOdds, JobCleanOdds} {
		spec := specs[name]
		if spec == "" {
			continue
		}
		if err := o.register(name, spec); err != nil {
			stop()
			return nil, err
		}
	}
	return o, nil
}

func (o *Orchestrator) register(name, spec string) error {
	_, err := o.cron.AddFunc(spec, func() {
		if err := o.RunNow(o.ctx, name); err != nil {
			o.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
	}
	o.logger.Info().Str("job", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// Start begins running scheduled jobs.
func (o *Orchestrator) Start() {
	o.cron.Start()
	o.logger.Info().Int("season", o.season()).Int("jobs", len(o.cron.Entries())).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (o *Orchestrator) Stop() {
	o.stop()
	<-o.cron.Stop().Done()
	o.logger.Info().Msg("scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule. Runs of the same
// orchestrator are serialized.
func (o *Orchestrator) RunNow(ctx context.Context, name string) error {
	task, ok := o.tasks[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	start := o.now()
	o.logger.Debug().Str("job", name).Msg("running job")
	if err := task(ctx); err != nil {
		return err
	}
	o.logger.Info().Str("job", name).Dur("took", time.Since(start)).Msg("job completed")
	return nil
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() map[string]interface{} {
	next := make([]time.Time, 0, len(o.cron.Entries()))
	for _, e := range o.cron.Entries() {
		next = append(next, e.Next)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Before(next[j]) })
	return map[string]interface{}{
		"season":    o.season(),
		"jobs":      len(next),
		"next_runs": next,
	}
}

func (o *Orchestrator) season() int {
	if o.config.Season > 0 {
		return o.config.Season
	}
	return o.now().Year()
}

func (o *Orchestrator) refreshStats(ctx context.Context) error {
	job, err := o.deps.Backfill.Enqueue(ctx, backfill.Request{Type: backfill.JobTypeStats, Season: o.season()})
	if err != nil {
		return err
	}
	o.logger.Info().Str("job_id", job.JobID).Msg("queued stats refresh")
	return nil
}

func (o *Orchestrator) refreshResults(ctx context.Context) error {
	ev, ok := o.lastFinished()
	if !ok {
		o.logger.Info().Int("season", o.season()).Msg("no finished event to refresh")
		return nil
	}

	res, err := o.deps.Results.IngestEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("refreshing %s: %w", ev.Name, err)
	}
	o.publish(ctx, res)
	return nil
}

func (o *Orchestrator) refreshOdds(ctx context.Context) error {
	ev, ok := o.nextEvent()
	if !ok {
		o.logger.Info().Int("season", o.season()).Msg("no upcoming event for odds")
		return nil
	}

	res, err := o.deps.Odds.SaveCurrentWeek(ctx, o.season(), ev.Name)
	if err != nil {
		return fmt.Errorf("saving odds for %s: %w", ev.Name, err)
	}
	o.publish(ctx, res)
	return nil
}

func (o *Orchestrator) cleanOdds(ctx context.Context) error {
	stats, err := o.deps.Cleaner.Clean(ctx)
	if err != nil {
		return err
	}
	o.logger.Info().Int("renamed", stats.Renamed).Msg("odds names cleaned")
	return nil
}

// lastFinished returns the latest event of the season that ended before today.
func (o *Orchestrator) lastFinished() (golf.ScheduledEvent, bool) {
	today := golf.DateOf(o.now())
	var (
		best     golf.ScheduledEvent
		bestDate golf.Date
		found    bool
	)
	for _, ev := range o.deps.Schedule.SeasonEvents(o.season()) {
		d, err := ev.EndingDate()
		if err != nil || !d.Before(today) {
			continue
		}
		if !found || d.After(bestDate) {
			best, bestDate, found = ev, d, true
		}
	}
	return best, found
}

// nextEvent returns the earliest event of the season ending today or later.
func (o *Orchestrator) nextEvent() (golf.ScheduledEvent, bool) {
	today := golf.DateOf(o.now())
	var (
		best     golf.ScheduledEvent
		bestDate golf.Date
		found    bool
	)
	for _, ev := range o.deps.Schedule.SeasonEvents(o.season()) {
		d, err := ev.EndingDate()
		if err != nil || d.Before(today) {
			continue
		}
		if !found || d.Before(bestDate) {
			best, bestDate, found = ev, d, true
		}
	}
	return best, found
}

func (o *Orchestrator) publish(ctx context.Context, res *ingest.Result) {
	if o.deps.Publisher == nil || res == nil {
		return
	}
	if err := o.deps.Publisher.PublishIngest(ctx, res); err != nil {
		o.logger.Warn().Err(err).Str("source", res.Source).Msg("failed to publish ingest summary")
	}
}
