// Package rest exposes the feature store and job controls over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/features"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/reconciliation"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/internal/training"
	"github.com/rs/zerolog"
)

// EventStore lists stored events.
type EventStore interface {
	ListEvents(ctx context.Context) ([]store.Event, error)
}

// HistorySelector picks historical events by course or tournament.
type HistorySelector interface {
	Select(ctx context.Context, course, tournament string, seasons []int) ([]store.Event, error)
}

// FeatureBuilder computes rolling features for events.
type FeatureBuilder interface {
	Build(ctx context.Context, events []store.Event) (features.Snapshots, error)
}

// TrainingPipeline builds a training matrix.
type TrainingPipeline interface {
	Run(ctx context.Context, course, tournament string, seasons []int) ([]training.Row, *training.Summary, error)
}

// CurrentOdds serves and stores the current week's odds.
type CurrentOdds interface {
	CurrentWeek(ctx context.Context, season int, tournament string) ([]store.OddsQuote, error)
	SaveCurrentWeek(ctx context.Context, season int, tournament string) (*ingest.Result, error)
}

// OddsCleaner re-applies the name maps to stored odds.
type OddsCleaner interface {
	Clean(ctx context.Context) (*reconciliation.Stats, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	events   EventStore
	history  HistorySelector
	features FeatureBuilder
	training TrainingPipeline
	odds     CurrentOdds
	cleaner  OddsCleaner
	checks   map[string]func(context.Context) error
	now      func() time.Time
	logger   zerolog.Logger
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       state,
		"service":      "caddie",
		"dependencies": deps,
	})
}

// GetEvents returns every stored event.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// GetEventHistory returns the events held at a course or under a tournament name.
func (h *Handler) GetEventHistory(w http.ResponseWriter, r *http.Request) {
	course, tournament, seasons, err := historyParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid history parameters", err)
		return
	}

	events, err := h.history.Select(r.Context(), course, tournament, seasons)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to select history", err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// GetFeatures computes the rolling features for one event, which need not be stored
// yet. An optional player parameter narrows the response to that player.
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := golf.ParseDate(q.Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)", err)
		return
	}
	tournament := strings.TrimSpace(q.Get("tournament"))
	if tournament == "" {
		respondError(w, http.StatusBadRequest, "tournament is required", nil)
		return
	}

	ev := store.Event{
		Season:     date.Year(),
		EndingDate: date,
		Tournament: tournament,
		Course:     strings.TrimSpace(q.Get("course")),
	}

	snaps, err := h.features.Build(r.Context(), []store.Event{ev})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build features", err)
		return
	}

	if player := strings.TrimSpace(q.Get("player")); player != "" {
		respondJSON(w, http.StatusOK, snaps.Lookup(ev.Key(), player))
		return
	}
	respondJSON(w, http.StatusOK, snaps[ev.Key()])
}

// GetTraining builds the training matrix as JSON, or CSV with format=csv.
func (h *Handler) GetTraining(w http.ResponseWriter, r *http.Request) {
	course, tournament, seasons, err := historyParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid training parameters", err)
		return
	}

	rows, summary, err := h.training.Run(r.Context(), course, tournament, seasons)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build training matrix", err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="training.csv"`)
		if err := training.WriteCSV(w, rows); err != nil {
			h.logger.Error().Err(err).Int("rows", len(rows)).Msg("failed to write training csv")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"rows":    rows,
	})
}

// GetCurrentOdds returns the current week's quotes for a tournament.
func (h *Handler) GetCurrentOdds(w http.ResponseWriter, r *http.Request) {
	season, tournament, err := h.oddsParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid odds parameters", err)
		return
	}

	quotes, err := h.odds.CurrentWeek(r.Context(), season, tournament)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to fetch current odds", err)
		return
	}

	respondJSON(w, http.StatusOK, quotes)
}

// SaveCurrentOdds stores the current week's quotes for a tournament.
func (h *Handler) SaveCurrentOdds(w http.ResponseWriter, r *http.Request) {
	season, tournament, err := h.oddsParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid odds parameters", err)
		return
	}

	result, err := h.odds.SaveCurrentWeek(r.Context(), season, tournament)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to save current odds", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// CleanOdds re-applies the name maps to stored odds.
func (h *Handler) CleanOdds(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleaner.Clean(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clean odds names", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func historyParams(r *http.Request) (course, tournament string, seasons []int, err error) {
	q := r.URL.Query()
	course = strings.TrimSpace(q.Get("course"))
	tournament = strings.TrimSpace(q.Get("tournament"))
	if course == "" && tournament == "" {
		return "", "", nil, errors.New("course or tournament is required")
	}
	seasons, err = backfill.ParseSeasons(q.Get("seasons"))
	return course, tournament, seasons, err
}

func (h *Handler) oddsParams(r *http.Request) (int, string, error) {
	q := r.URL.Query()
	tournament := strings.TrimSpace(q.Get("tournament"))
	if tournament == "" {
		return 0, "", errors.New("tournament is required")
	}

	season := h.now().Year()
	if s := q.Get("season"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, "", fmt.Errorf("invalid season %q", s)
		}
		season = n
	}
	return season, tournament, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	respondJSON(w, status, response)
}
