package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrInvalidRequest is returned by Enqueue for requests that cannot become a job.
var ErrInvalidRequest = errors.New("invalid backfill request")

// Request represents a backfill invocation request.
type Request struct {
	Type        JobType
	Season      int
	ArchiveYear string
	Course      string
	Tournament  string
	Seasons     []int
	DryRun      bool
}

// Validate checks that the request carries what its job type needs.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidRequest, r.Type)
	}
	switch r.Type {
	case JobTypeResults, JobTypeStats, JobTypeOdds:
		if r.Season <= 0 {
			return fmt.Errorf("%w: %s job requires season", ErrInvalidRequest, r.Type)
		}
	case JobTypeTraining:
		if r.Course == "" && r.Tournament == "" {
			return fmt.Errorf("%w: training job requires course or tournament", ErrInvalidRequest)
		}
	}
	return nil
}

// Progress is pushed to the broadcaster on every job update.
type Progress struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	JobType   JobType   `json:"job_type"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster fans progress out to live listeners.
type Broadcaster interface {
	Broadcast(message interface{})
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo        *Repository
	runner      *Runner
	broadcaster Broadcaster
	metrics     *metrics.Metrics

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewService constructs a Service. Call Start to launch workers. broadcaster may be nil.
func NewService(repo *Repository, runner *Runner, broadcaster Broadcaster, m *metrics.Metrics, logger zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:         repo,
		runner:       runner,
		broadcaster:  broadcaster,
		metrics:      m,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With().Str("component", "backfill").Logger(),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if n, err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to reset jobs")
	} else if n > 0 {
		s.logger.Warn().Int("jobs", n).Msg("requeued jobs left running by a previous process")
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := &Job{
		JobType:       req.Type,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
		ArchiveYear:   sql.NullString{String: req.ArchiveYear, Valid: req.ArchiveYear != ""},
		Course:        sql.NullString{String: req.Course, Valid: req.Course != ""},
		Tournament:    sql.NullString{String: req.Tournament, Valid: req.Tournament != ""},
		Seasons:       encodeSeasons(req.Seasons),
	}
	if req.Season > 0 {
		job.Season = sql.NullInt64{Int64: int64(req.Season), Valid: true}
	}
	job.DryRun = req.DryRun

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued", nil, nil); err != nil {
		s.logger.Warn().Err(err).Str("job_id", stored.JobID).Msg("failed to record queue event")
	}
	s.logger.Info().Str("job_id", stored.JobID).Str("type", string(stored.JobType)).Msg("backfill job queued")

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("claim job error")
			job = nil
		}
		if job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	log := s.logger.With().Str("job_id", job.JobID).Str("type", string(job.JobType)).Logger()
	spec := buildSpec(job)

	reporter := &jobReporter{
		ctx:         s.ctx,
		repo:        s.repo,
		broadcaster: s.broadcaster,
		job:         job,
		logger:      log,
	}

	start := time.Now()
	if err := s.runner.Run(s.ctx, spec, reporter); err != nil {
		status := JobStatusFailed
		if errors.Is(err, context.Canceled) {
			status = JobStatusCancelled
		}
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("backfill job failed")
		// the service context may already be cancelled
		if uerr := s.repo.UpdateStatus(context.Background(), job.JobID, status, "Job "+string(status), err); uerr != nil {
			log.Error().Err(uerr).Msg("failed to record job failure")
		}
		s.metrics.JobFinished(string(job.JobType), string(status))
		return
	}

	if err := s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusCompleted, "Job completed", nil); err != nil {
		log.Error().Err(err).Msg("failed to record job completion")
	}
	s.metrics.JobFinished(string(job.JobType), string(JobStatusCompleted))
	log.Info().Dur("took", time.Since(start)).Msg("backfill job completed")
}

func buildSpec(job *Job) JobSpec {
	return JobSpec{
		Type:        job.JobType,
		Season:      int(job.Season.Int64),
		ArchiveYear: job.ArchiveYear.String,
		Course:      job.Course.String,
		Tournament:  job.Tournament.String,
		Seasons:     decodeSeasons(job.Seasons.String),
		DryRun:      job.DryRun,
	}
}

type jobReporter struct {
	ctx         context.Context
	repo        *Repository
	broadcaster Broadcaster
	job         *Job
	total       int
	logger      zerolog.Logger
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	r.update("start", "Job starting", 0, 0)
}

func (r *jobReporter) OnStepStart(label string, index int, total int) {
	r.total = total
	r.update("step", fmt.Sprintf("Processing %s (%d/%d)", label, index+1, total), index, total)
}

func (r *jobReporter) OnStepDone(label string, result *ingest.Result) {
	if result == nil {
		return
	}
	r.event("step", fmt.Sprintf("%s done: %s", label, result))
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	if total == 0 {
		total = r.total
	}
	r.update("progress", message, current, total)
}

func (r *jobReporter) OnJobComplete() {
	r.update("complete", "Job complete", r.total, r.total)
}

func (r *jobReporter) OnJobError(err error) {
	r.event("error", err.Error())
	r.broadcast("error", err.Error(), 0, r.total)
}

func (r *jobReporter) update(event, message string, current, total int) {
	if err := r.repo.UpdateProgress(r.ctx, r.job.JobID, current, total, message); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record job progress")
	}
	r.broadcast(event, message, current, total)
}

func (r *jobReporter) event(kind, message string) {
	if err := r.repo.AppendEvent(r.ctx, r.job.JobID, kind, message, nil, nil); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record job event")
	}
}

func (r *jobReporter) broadcast(event, message string, current, total int) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(Progress{
		Type:      "backfill_progress",
		JobID:     r.job.JobID,
		JobType:   r.job.JobType,
		Event:     event,
		Message:   message,
		Current:   current,
		Total:     total,
		Timestamp: time.Now().UTC(),
	})
}

// ParseSeasons parses a comma separated season list such as "2019,2020".
func ParseSeasons(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: season %q", ErrInvalidRequest, part)
		}
		out = append(out, n)
	}
	return out, nil
}
