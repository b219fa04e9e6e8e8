package backfill

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fortuna/caddie/internal/ingest"
)

// JobType enumerates the supported backfill job variants.
type JobType string

const (
	JobTypeResults  JobType = "results"
	JobTypeStats    JobType = "stats"
	JobTypeOdds     JobType = "odds"
	JobTypeTraining JobType = "training"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeResults, JobTypeStats, JobTypeOdds, JobTypeTraining:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job models the database representation of a backfill job.
type Job struct {
	JobID           string
	JobType         JobType
	Season          sql.NullInt64
	ArchiveYear     sql.NullString
	Course          sql.NullString
	Tournament      sql.NullString
	Seasons         sql.NullString // comma separated
	DryRun          bool
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	LastError       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	return &cpy
}

// MarshalJSON flattens nullable columns for API responses.
func (j *Job) MarshalJSON() ([]byte, error) {
	type view struct {
		JobID           string     `json:"job_id"`
		JobType         JobType    `json:"job_type"`
		Season          *int64     `json:"season,omitempty"`
		ArchiveYear     string     `json:"archive_year,omitempty"`
		Course          string     `json:"course,omitempty"`
		Tournament      string     `json:"tournament,omitempty"`
		Seasons         []int      `json:"seasons,omitempty"`
		DryRun          bool       `json:"dry_run,omitempty"`
		Status          JobStatus  `json:"status"`
		StatusMessage   string     `json:"status_message,omitempty"`
		ProgressCurrent int        `json:"progress_current"`
		ProgressTotal   int        `json:"progress_total"`
		LastError       string     `json:"last_error,omitempty"`
		CreatedAt       time.Time  `json:"created_at"`
		UpdatedAt       time.Time  `json:"updated_at"`
		StartedAt       *time.Time `json:"started_at,omitempty"`
		CompletedAt     *time.Time `json:"completed_at,omitempty"`
	}
	v := view{
		JobID:           j.JobID,
		JobType:         j.JobType,
		ArchiveYear:     j.ArchiveYear.String,
		Course:          j.Course.String,
		Tournament:      j.Tournament.String,
		Seasons:         decodeSeasons(j.Seasons.String),
		DryRun:          j.DryRun,
		Status:          j.Status,
		StatusMessage:   j.StatusMessage.String,
		ProgressCurrent: j.ProgressCurrent,
		ProgressTotal:   j.ProgressTotal,
		LastError:       j.LastError.String,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if j.Season.Valid {
		v.Season = &j.Season.Int64
	}
	if j.StartedAt.Valid {
		v.StartedAt = &j.StartedAt.Time
	}
	if j.CompletedAt.Valid {
		v.CompletedAt = &j.CompletedAt.Time
	}
	return json.Marshal(v)
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type        JobType
	Season      int
	ArchiveYear string // odds archive page year, defaults to Season
	Course      string
	Tournament  string
	Seasons     []int
	DryRun      bool
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnStepStart(label string, index int, total int)
	OnStepDone(label string, result *ingest.Result)
	OnProgress(message string, current int, total int)
	OnJobComplete()
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
