package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fortuna/caddie/internal/backfill"
)

// BackfillService queues jobs and reports their status.
type BackfillService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
}

// BackfillHandler proxies API calls to the backfill service.
type BackfillHandler struct {
	service BackfillService
}

// NewBackfillHandler wires the REST layer to the backfill service.
func NewBackfillHandler(service BackfillService) *BackfillHandler {
	return &BackfillHandler{service: service}
}

type apiBackfillRequest struct {
	Type        string `json:"type"`
	Season      int    `json:"season"`
	ArchiveYear string `json:"archive_year"`
	Course      string `json:"course"`
	Tournament  string `json:"tournament"`
	Seasons     []int  `json:"seasons"`
	DryRun      bool   `json:"dry_run"`
}

// HandleBackfillRequest handles POST /api/v1/backfill
func (h *BackfillHandler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	var req apiBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.service.Enqueue(r.Context(), backfill.Request{
		Type:        backfill.JobType(req.Type),
		Season:      req.Season,
		ArchiveYear: req.ArchiveYear,
		Course:      req.Course,
		Tournament:  req.Tournament,
		Seasons:     req.Seasons,
		DryRun:      req.DryRun,
	})
	if errors.Is(err, backfill.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, "Invalid backfill request", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue backfill job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": job,
	})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []*backfill.Job{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = summary.ActiveJob
	}
	if len(summary.History) > 0 {
		response["history"] = summary.History
	}

	return response
}
