package rest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fortuna/caddie/internal/backfill"
	"github.com/fortuna/caddie/internal/features"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/reconciliation"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/internal/store/repository"
	"github.com/fortuna/caddie/internal/store/storetest"
	"github.com/fortuna/caddie/internal/training"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOdds struct{ saved []string }

func (f *fakeOdds) CurrentWeek(_ context.Context, season int, tournament string) ([]store.OddsQuote, error) {
	if tournament == "Unknown Open" {
		return nil, errors.New("upstream down")
	}
	return []store.OddsQuote{{Season: season, Tournament: tournament, Player: "Scottie Scheffler", Odds: "4/1", VegasOdds: 4}}, nil
}

func (f *fakeOdds) SaveCurrentWeek(_ context.Context, season int, tournament string) (*ingest.Result, error) {
	f.saved = append(f.saved, tournament)
	return &ingest.Result{Source: "odds", Inserted: 1}, nil
}

type fakeCleaner struct{}

func (fakeCleaner) Clean(context.Context) (*reconciliation.Stats, error) {
	return &reconciliation.Stats{Scanned: 10, Renamed: 2, Written: 2}, nil
}

type fakeBackfill struct{ requests []backfill.Request }

func (f *fakeBackfill) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	return &backfill.Job{JobID: "job-1", JobType: req.Type, Status: backfill.JobStatusQueued}, nil
}

func (f *fakeBackfill) GetStatus(context.Context) (*backfill.StatusSummary, error) {
	return &backfill.StatusSummary{}, nil
}

type fixture struct {
	router   http.Handler
	odds     *fakeOdds
	backfill *fakeBackfill
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storetest.Open(t)

	tournaments := repository.NewTournamentRepository(db)
	stats := repository.NewStatsRepository(db)
	odds := repository.NewOddsRepository(db)

	var rows []store.TournamentResult
	add := func(date, tournament, course, player, pos string) {
		d := golf.MustParseDate(date)
		rows = append(rows, store.TournamentResult{
			Season: d.Year(), EndingDate: d, TournID: "R" + date, Tournament: tournament, Course: course,
			Player: player, Pos: pos, FinalPos: golf.ParseFinalPosition(pos),
			FedexCupPoints: sql.NullString{String: "100", Valid: true},
		})
	}
	add("2023-04-09", "Masters Tournament", "Augusta National", "Scottie Scheffler", "T10")
	add("2023-04-09", "Masters Tournament", "Augusta National", "Rory McIlroy", "CUT")
	add("2024-04-14", "Masters Tournament", "Augusta National", "Scottie Scheffler", "1")
	add("2024-04-14", "Masters Tournament", "Augusta National", "Rory McIlroy", "T22")
	_, err := tournaments.InsertMissing(ctx, rows)
	require.NoError(t, err)

	m := metrics.New()
	engine := features.NewEngine(tournaments, features.DefaultConfig(), m, zerolog.Nop())
	builder := training.NewBuilder(tournaments, stats, odds, engine, m, zerolog.Nop())
	selector := training.NewHistorySelector(tournaments)

	f := &fixture{odds: &fakeOdds{}, backfill: &fakeBackfill{}}
	f.router = NewRouter(Deps{
		Events:   tournaments,
		History:  selector,
		Features: engine,
		Training: training.NewPipeline(selector, builder, nil, zerolog.Nop()),
		Odds:     f.odds,
		Cleaner:  fakeCleaner{},
		Backfill: f.backfill,
		Checks:   map[string]func(context.Context) error{"database": db.HealthCheck},
		Metrics:  m.Handler(),
	}, zerolog.Nop())
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]interface{}{"database": "ok"}, body["dependencies"])
}

func TestEventsAndHistory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []store.Event
	decode(t, rec, &events)
	assert.Len(t, events, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/events/history?course=Augusta+National&seasons=2024", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, 2024, events[0].Season)

	rec = f.do(t, http.MethodGet, "/api/v1/events/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/events/history?course=Augusta+National&seasons=recent", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeatures(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/features?date=2025-04-13&tournament=Masters+Tournament&course=Augusta+National&player=Scottie+Scheffler", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var player features.Player
	decode(t, rec, &player)
	require.NotNil(t, player.Course)
	assert.Equal(t, 2, player.Course.EventsPlayed)
	assert.Equal(t, 5.5, player.Course.Mean)
	assert.Nil(t, player.Cut, "nothing inside the six month window")

	rec = f.do(t, http.MethodGet, "/api/v1/features?date=13/04/2025&tournament=Masters+Tournament", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrainingFormats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/training?tournament=Masters+Tournament", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Summary training.Summary `json:"summary"`
		Rows    []training.Row   `json:"rows"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 4, body.Summary.Rows)
	assert.Equal(t, 2, body.Summary.Positives)
	assert.Len(t, body.Rows, 4)

	rec = f.do(t, http.MethodGet, "/api/v1/training?tournament=Masters+Tournament&format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, training.Columns(), records[0])
}

func TestOddsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/odds/current?season=2025&tournament=Masters+Tournament", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var quotes []store.OddsQuote
	decode(t, rec, &quotes)
	require.Len(t, quotes, 1)
	assert.Equal(t, 2025, quotes[0].Season)
	assert.True(t, quotes[0].EndingDate.IsZero())

	rec = f.do(t, http.MethodGet, "/api/v1/odds/current?tournament=Unknown+Open", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/odds/current?season=soon&tournament=Masters+Tournament", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/odds/current?tournament=Masters+Tournament", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Masters Tournament"}, f.odds.saved)

	rec = f.do(t, http.MethodPost, "/api/v1/odds/clean", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats reconciliation.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 2, stats.Renamed)
}

func TestBackfillEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/backfill", `{"type":"odds","season":2021,"archive_year":"2020-21"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.backfill.requests, 1)
	assert.Equal(t, "2020-21", f.backfill.requests[0].ArchiveYear)

	rec = f.do(t, http.MethodPost, "/api/v1/backfill", `{"type":"games","season":2021}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/backfill", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/backfill/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, "idle", status["status"])
}

func TestMetricsAndCORS(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/features?date=2025-04-13&tournament=Masters+Tournament", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "caddie_features_build_duration_seconds")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type fixedPipeline struct{ rows []training.Row }

func (p fixedPipeline) Run(context.Context, string, string, []int) ([]training.Row, *training.Summary, error) {
	return p.rows, &training.Summary{Rows: len(p.rows)}, nil
}

// brokenWriter accepts the first write partially and reports an error for it.
type brokenWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.writes == 1 {
		n, _ := w.ResponseRecorder.Write(b[:len(b)/2])
		return n, errors.New("connection reset")
	}
	return w.ResponseRecorder.Write(b)
}

func TestTrainingCSVWriteFailureKeepsBody(t *testing.T) {
	h := &Handler{
		training: fixedPipeline{rows: []training.Row{{Season: 2024, Player: "Scottie Scheffler", FinalPos: 1}}},
		logger:   zerolog.Nop(),
	}
	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/training?tournament=Masters+Tournament&format=csv", nil)

	h.GetTraining(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, w.writes, "nothing is written after the failed write")
	assert.NotContains(t, w.Body.String(), `"error"`)
}
