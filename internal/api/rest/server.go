package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Deps wires the REST API. Metrics may be nil.
type Deps struct {
	Events   EventStore
	History  HistorySelector
	Features FeatureBuilder
	Training TrainingPipeline
	Odds     CurrentOdds
	Cleaner  OddsCleaner
	Backfill BackfillService
	Checks   map[string]func(context.Context) error // named dependency checks for /health
	Metrics  http.Handler
}

// Server represents the REST API server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewRouter builds the API routes.
func NewRouter(deps Deps, logger zerolog.Logger) *mux.Router {
	handler := &Handler{
		events:   deps.Events,
		history:  deps.History,
		features: deps.Features,
		training: deps.Training,
		odds:     deps.Odds,
		cleaner:  deps.Cleaner,
		checks:   deps.Checks,
		now:      time.Now,
		logger:   logger.With().Str("component", "rest").Logger(),
	}
	backfillHandler := NewBackfillHandler(deps.Backfill)

	router := mux.NewRouter()

	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware)

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/events", handler.GetEvents).Methods("GET")
	api.HandleFunc("/events/history", handler.GetEventHistory).Methods("GET")
	api.HandleFunc("/features", handler.GetFeatures).Methods("GET")
	api.HandleFunc("/training", handler.GetTraining).Methods("GET")

	api.HandleFunc("/odds/current", handler.GetCurrentOdds).Methods("GET")
	api.HandleFunc("/odds/current", handler.SaveCurrentOdds).Methods("POST")
	api.HandleFunc("/odds/clean", handler.CleanOdds).Methods("POST")

	api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
	api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")

	return router
}

// NewServer creates a new REST API server
func NewServer(port string, timeout time.Duration, deps Deps, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "rest").Logger()
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       timeout,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("rest server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
