package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/store/storetest"
	"github.com/fortuna/caddie/internal/training"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	events []string
	fail   string
}

func (f *fakeResults) IngestEvent(_ context.Context, ev golf.ScheduledEvent) (*ingest.Result, error) {
	if ev.Name == f.fail {
		return nil, errors.New("bad schedule date")
	}
	f.events = append(f.events, ev.Name)
	return &ingest.Result{Source: "results", Fetched: 10, Parsed: 9, Inserted: 9}, nil
}

type fakeStats struct{ seasons []int }

func (f *fakeStats) IngestSeason(_ context.Context, season int) (*ingest.Result, error) {
	f.seasons = append(f.seasons, season)
	return &ingest.Result{Source: "stats", Inserted: 200}, nil
}

type fakeOdds struct{ archives []string }

func (f *fakeOdds) ImportHistorical(_ context.Context, archiveYear string, season int) (*ingest.Result, error) {
	f.archives = append(f.archives, archiveYear)
	return &ingest.Result{Source: "odds", Inserted: 40}, nil
}

type fakeTraining struct{ calls int }

func (f *fakeTraining) Run(_ context.Context, course, tournament string, seasons []int) ([]training.Row, *training.Summary, error) {
	f.calls++
	return nil, &training.Summary{Course: course, Tournament: tournament, Events: 2, Rows: 100}, nil
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

type recordingPublisher struct {
	mu        sync.Mutex
	summaries []*ingest.Result
}

func (p *recordingPublisher) PublishIngest(_ context.Context, summary interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary.(*ingest.Result))
	return nil
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []Progress
}

func (b *recordingBroadcaster) Broadcast(message interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message.(Progress))
}

func (b *recordingBroadcaster) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.messages {
		out = append(out, m.Event)
	}
	return out
}

type fixture struct {
	results   *fakeResults
	stats     *fakeStats
	odds      *fakeOdds
	training  *fakeTraining
	publisher *recordingPublisher
	runner    *Runner
}

func newFixture() *fixture {
	f := &fixture{
		results:   &fakeResults{},
		stats:     &fakeStats{},
		odds:      &fakeOdds{},
		training:  &fakeTraining{},
		publisher: &recordingPublisher{},
	}
	f.runner = NewRunner(RunnerDeps{
		Results:  f.results,
		Stats:    f.stats,
		Odds:     f.odds,
		Training: f.training,
		Schedule: schedule{
			{ID: "R2023014", Name: "Masters Tournament", Season: 2023, Date: "04/09/2023"},
			{ID: "R2023011", Name: "THE PLAYERS Championship", Season: 2023, Date: "03/12/2023"},
			{ID: "R2024014", Name: "Masters Tournament", Season: 2024, Date: "04/14/2024"},
		},
		Publisher: f.publisher,
	}, zerolog.Nop())
	return f
}

func TestRunnerResults(t *testing.T) {
	f := newFixture()

	err := f.runner.Run(context.Background(), JobSpec{Type: JobTypeResults, Season: 2023}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Masters Tournament", "THE PLAYERS Championship"}, f.results.events)

	require.Len(t, f.publisher.summaries, 1)
	assert.Equal(t, 18, f.publisher.summaries[0].Inserted)
}

func TestRunnerStopsOnHardError(t *testing.T) {
	f := newFixture()
	f.results.fail = "THE PLAYERS Championship"

	err := f.runner.Run(context.Background(), JobSpec{Type: JobTypeResults, Season: 2023}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THE PLAYERS Championship")
	assert.Empty(t, f.publisher.summaries)
}

func TestRunnerDispatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.runner.Run(ctx, JobSpec{Type: JobTypeStats, Season: 2024}, nil))
	require.NoError(t, f.runner.Run(ctx, JobSpec{Type: JobTypeOdds, Season: 2021, ArchiveYear: "2020-21"}, nil))
	require.NoError(t, f.runner.Run(ctx, JobSpec{Type: JobTypeOdds, Season: 2019}, nil))
	require.NoError(t, f.runner.Run(ctx, JobSpec{Type: JobTypeTraining, Course: "Augusta National"}, nil))

	assert.Equal(t, []int{2024}, f.stats.seasons)
	assert.Equal(t, []string{"2020-21", "2019"}, f.odds.archives)
	assert.Equal(t, 1, f.training.calls)
	assert.Len(t, f.publisher.summaries, 3)

	require.Error(t, f.runner.Run(ctx, JobSpec{Type: JobTypeTraining}, nil))
	require.Error(t, f.runner.Run(ctx, JobSpec{Type: "boxscores"}, nil))
}

func TestRunnerDryRun(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.runner.Run(context.Background(), JobSpec{Type: JobTypeStats, Season: 2024, DryRun: true}, nil))
	assert.Empty(t, f.stats.seasons)
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Type: JobTypeResults, Season: 2024}.Validate())
	assert.NoError(t, Request{Type: JobTypeTraining, Tournament: "Masters Tournament"}.Validate())
	assert.ErrorIs(t, Request{Type: JobTypeStats}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, Request{Type: JobTypeTraining}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, Request{Type: "season"}.Validate(), ErrInvalidRequest)
}

func TestParseSeasons(t *testing.T) {
	seasons, err := ParseSeasons("2019, 2020,2021")
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020, 2021}, seasons)

	seasons, err = ParseSeasons("")
	require.NoError(t, err)
	assert.Nil(t, seasons)

	_, err = ParseSeasons("2019,last")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRepositoryClaimsInOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(storetest.Open(t))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := repo.CreateJob(ctx, &Job{JobType: JobTypeStats, Status: JobStatusQueued})
	require.NoError(t, err)
	second, err := repo.CreateJob(ctx, &Job{JobType: JobTypeOdds, Status: JobStatusQueued, Seasons: encodeSeasons([]int{2020, 2021})})
	require.NoError(t, err)

	claimed, err := repo.MarkNextJobRunning(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.JobID, claimed.JobID)
	assert.Equal(t, JobStatusRunning, claimed.Status)
	assert.True(t, claimed.StartedAt.Valid)

	active, err := repo.GetActiveJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.JobID, active.JobID)

	claimed, err = repo.MarkNextJobRunning(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.JobID, claimed.JobID)
	assert.Equal(t, []int{2020, 2021}, decodeSeasons(claimed.Seasons.String))

	claimed, err = repo.MarkNextJobRunning(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	n, err := repo.ResetStuckJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.UpdateStatus(ctx, first.JobID, JobStatusFailed, "Job failed", errors.New("boom")))
	stored, err := repo.GetJob(ctx, first.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "boom", stored.LastError.String)
	assert.True(t, stored.CompletedAt.Valid)

	missing, err := repo.GetJob(ctx, "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobJSON(t *testing.T) {
	job := &Job{
		JobID:   "abc",
		JobType: JobTypeTraining,
		Status:  JobStatusQueued,
		Seasons: encodeSeasons([]int{2023, 2024}),
	}
	job.Course.String, job.Course.Valid = "Augusta National", true

	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Augusta National", decoded["course"])
	assert.Equal(t, []interface{}{2023.0, 2024.0}, decoded["seasons"])
	assert.NotContains(t, decoded, "season")
	assert.NotContains(t, decoded, "started_at")
}

func TestServiceRunsQueuedJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	repo := NewRepository(storetest.Open(t))
	hub := &recordingBroadcaster{}

	svc := NewService(repo, f.runner, hub, nil, zerolog.Nop())
	svc.pollInterval = 10 * time.Millisecond

	job, err := svc.Enqueue(ctx, Request{Type: JobTypeResults, Season: 2023})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, Request{Type: JobTypeStats})
	require.ErrorIs(t, err, ErrInvalidRequest)

	svc.Start()
	require.Eventually(t, func() bool {
		stored, err := repo.GetJob(ctx, job.JobID)
		return err == nil && stored != nil && stored.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Shutdown(ctx))

	stored, err := repo.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ProgressCurrent)
	assert.Equal(t, 2, stored.ProgressTotal)

	events, err := repo.ListEvents(ctx, job.JobID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "queued", events[0].EventType)

	assert.Contains(t, hub.events(), "start")
	assert.Contains(t, hub.events(), "complete")

	status, err := svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.ActiveJob)
	require.Len(t, status.History, 1)
}
