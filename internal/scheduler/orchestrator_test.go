package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/config"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/reconciliation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct{ requests []backfill.Request }

func (q *fakeQueue) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	q.requests = append(q.requests, req)
	return &backfill.Job{JobID: "job-1", JobType: req.Type}, nil
}

type fakeResults struct{ events []string }

func (f *fakeResults) IngestEvent(_ context.Context, ev golf.ScheduledEvent) (*ingest.Result, error) {
	f.events = append(f.events, ev.Name)
	return &ingest.Result{Source: "results", Inserted: 70}, nil
}

type fakeOdds struct{ tournaments []string }

func (f *fakeOdds) SaveCurrentWeek(_ context.Context, season int, tournament string) (*ingest.Result, error) {
	f.tournaments = append(f.tournaments, tournament)
	return &ingest.Result{Source: "odds", Inserted: 120}, nil
}

type fakeCleaner struct{ runs int }

func (f *fakeCleaner) Clean(context.Context) (*reconciliation.Stats, error) {
	f.runs++
	return &reconciliation.Stats{Renamed: 3}, nil
}

type schedule []golf.ScheduledEvent

func (s schedule) SeasonEvents(season int) []golf.ScheduledEvent {
	var out []golf.ScheduledEvent
	for _, ev := range s {
		if ev.Season == season {
			out = append(out, ev)
		}
	}
	return out
}

type countingPublisher struct{ n int }

func (p *countingPublisher) PublishIngest(context.Context, interface{}) error {
	p.n++
	return nil
}

type fixture struct {
	queue   *fakeQueue
	results *fakeResults
	odds    *fakeOdds
	cleaner *fakeCleaner
	pub     *countingPublisher
	orch    *Orchestrator
}

func newFixture(t *testing.T, cfg config.SchedulerConfig, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		queue:   &fakeQueue{},
		results: &fakeResults{},
		odds:    &fakeOdds{},
		cleaner: &fakeCleaner{},
		pub:     &countingPublisher{},
	}
	orch, err := NewOrchestrator(cfg, Deps{
		Backfill: f.queue,
		Results:  f.results,
		Odds:     f.odds,
		Cleaner:  f.cleaner,
		Schedule: schedule{
			{ID: "R2024011", Name: "THE PLAYERS Championship", Season: 2024, Date: "03/17/2024"},
			{ID: "R2024014", Name: "Masters Tournament", Season: 2024, Date: "04/14/2024"},
			{ID: "R2024012", Name: "RBC Heritage", Season: 2024, Date: "04/21/2024"},
			{ID: "R2024013", Name: "Zurich Classic of New Orleans", Season: 2024, Date: "04/28/2024"},
		},
		Publisher: f.pub,
	}, zerolog.Nop())
	require.NoError(t, err)
	orch.now = func() time.Time { return now }
	f.orch = orch
	return f
}

func TestRunNow(t *testing.T) {
	ctx := context.Background()
	// Wednesday of RBC Heritage week
	f := newFixture(t, config.SchedulerConfig{}, time.Date(2024, 4, 17, 12, 0, 0, 0, time.UTC))

	require.NoError(t, f.orch.RunNow(ctx, JobResults))
	assert.Equal(t, []string{"Masters Tournament"}, f.results.events)

	require.NoError(t, f.orch.RunNow(ctx, JobOdds))
	assert.Equal(t, []string{"RBC Heritage"}, f.odds.tournaments)

	require.NoError(t, f.orch.RunNow(ctx, JobStats))
	require.Len(t, f.queue.requests, 1)
	assert.Equal(t, backfill.Request{Type: backfill.JobTypeStats, Season: 2024}, f.queue.requests[0])

	require.NoError(t, f.orch.RunNow(ctx, JobCleanOdds))
	assert.Equal(t, 1, f.cleaner.runs)

	assert.Equal(t, 2, f.pub.n)
	assert.Error(t, f.orch.RunNow(ctx, "live_games"))
}

func TestRunNowOutsideSeason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SchedulerConfig{Season: 2024}, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	require.NoError(t, f.orch.RunNow(ctx, JobResults))
	assert.Empty(t, f.results.events)

	f.orch.now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, f.orch.RunNow(ctx, JobOdds))
	assert.Empty(t, f.odds.tournaments)
}

func TestNewOrchestratorRegistersSpecs(t *testing.T) {
	cfg := config.New().Scheduler
	f := newFixture(t, cfg, time.Now())
	assert.Len(t, f.orch.cron.Entries(), 4)

	cfg.OddsSpec = ""
	f = newFixture(t, cfg, time.Now())
	assert.Len(t, f.orch.cron.Entries(), 3)

	cfg.StatsSpec = "every tuesday"
	_, err := NewOrchestrator(cfg, Deps{}, zerolog.Nop())
	assert.Error(t, err)
}
