package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/caddie/internal/store"
	"github.com/google/uuid"
)

const jobColumns = `job_id, job_type, season, archive_year, course, tournament, seasons, dry_run,
	status, status_message, progress_current, progress_total,
	last_error, created_at, updated_at, started_at, completed_at`

// Repository handles persistence for backfill jobs and events.
type Repository struct {
	db  *store.Database
	now func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob inserts a new job row and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	stored := job.Copy()
	stored.JobID = uuid.NewString()
	stored.CreatedAt = r.now()
	stored.UpdatedAt = stored.CreatedAt

	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO backfill_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		stored.JobID, stored.JobType, stored.Season, stored.ArchiveYear, stored.Course, stored.Tournament, stored.Seasons, stored.DryRun,
		stored.Status, stored.StatusMessage, stored.ProgressCurrent, stored.ProgressTotal,
		stored.LastError, stored.CreatedAt, stored.UpdatedAt, stored.StartedAt, stored.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return stored, nil
}

// GetJob loads one job by id. A missing job returns nil, nil.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM backfill_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, jobID string, status JobStatus, message string, lastErr error) error {
	now := r.now()

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}
	var completed sql.NullTime
	if status.Terminal() {
		completed = sql.NullTime{Time: now, Valid: true}
	}

	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = $2,
			status_message = $3,
			last_error = $4,
			updated_at = $5,
			completed_at = COALESCE($6, completed_at)
		WHERE job_id = $1
	`, jobID, string(status), message, errText, now, completed)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE backfill_jobs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = $5
		WHERE job_id = $1
	`, jobID, current, total, message, r.now())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// AppendEvent stores a log entry for a job.
func (r *Repository) AppendEvent(ctx context.Context, jobID string, eventType, message string, current, total *int) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO backfill_job_events (event_id, job_id, event_type, message, progress_current, progress_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), jobID, eventType, message, nullInt(current), nullInt(total), r.now())
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// JobEvent is one stored log line of a job.
type JobEvent struct {
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEvents returns a job's log in insertion order.
func (r *Repository) ListEvents(ctx context.Context, jobID string) ([]JobEvent, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT event_type, message, created_at
		FROM backfill_job_events
		WHERE job_id = $1
		ORDER BY created_at, event_id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer rows.Close()

	var events []JobEvent
	for rows.Next() {
		var ev JobEvent
		if err := rows.Scan(&ev.EventType, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ResetStuckJobs moves running jobs back to queued (used during service restarts).
func (r *Repository) ResetStuckJobs(ctx context.Context) (int, error) {
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = $1
		WHERE status = 'running'
	`, r.now())
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkNextJobRunning claims the oldest queued job. The status guard on the update
// makes the claim safe against concurrent workers on either dialect.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+jobColumns+`
			FROM backfill_jobs
			WHERE status = 'queued'
			ORDER BY created_at, job_id
			LIMIT 1
		`)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE backfill_jobs
			SET status = 'running',
				status_message = 'Starting job...',
				started_at = COALESCE(started_at, $2),
				updated_at = $2
			WHERE job_id = $1 AND status = 'queued'
		`, job.JobID, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}

		job.Status = JobStatusRunning
		job.StatusMessage = sql.NullString{String: "Starting job...", Valid: true}
		if !job.StartedAt.Valid {
			job.StartedAt = sql.NullTime{Time: now, Valid: true}
		}
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return claimed, nil
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	row := r.db.DB().QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM backfill_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return job, nil
}

// ListRecentJobs returns the most recently created jobs.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM backfill_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	err := scanner.Scan(
		&job.JobID,
		&job.JobType,
		&job.Season,
		&job.ArchiveYear,
		&job.Course,
		&job.Tournament,
		&job.Seasons,
		&job.DryRun,
		&job.Status,
		&job.StatusMessage,
		&job.ProgressCurrent,
		&job.ProgressTotal,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func encodeSeasons(seasons []int) sql.NullString {
	if len(seasons) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(seasons))
	for i, s := range seasons {
		parts[i] = strconv.Itoa(s)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}

func decodeSeasons(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
