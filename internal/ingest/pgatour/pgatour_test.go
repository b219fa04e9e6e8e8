package pgatour

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/internal/store/repository"
	"github.com/fortuna/caddie/internal/store/storetest"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pastResultsBody = `{"data":{"tournamentPastResults":{"id":"R2024014","players":[
 {"id":"1","position":"1","player":{"displayName":"Scottie Scheffler"},"rounds":[{"parRelativeScore":"-6"},{"parRelativeScore":"-6"},{"parRelativeScore":"-1"},{"parRelativeScore":"-4"}],"additionalData":["750.000","$3,600,000"]},
 {"id":"2","position":"T2","player":{"displayName":"Ludvig  Aberg"},"rounds":[{"parRelativeScore":"-1"}],"additionalData":["400.000"]},
 {"id":"3","position":"CUT","player":{"displayName":"Rory McIlroy"},"rounds":[],"additionalData":[]},
 {"id":"4","position":null,"player":{"displayName":"Ghost"},"rounds":[],"additionalData":[]},
 {"id":"5","position":"","player":{"displayName":"Blank"},"rounds":[],"additionalData":[]}
]}}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "test-key"}, zerolog.Nop(), nil)
}

func masters() golf.ScheduledEvent {
	return golf.ScheduledEvent{ID: "R2024014", Name: "Masters Tournament", Course: "Augusta National Golf Club", Date: "04/14/2024", Season: 2024}
}

func TestClientPastResultsSendsGraphQLRequest(t *testing.T) {
	var got graphQLRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(pastResultsBody))
	})

	players, err := client.PastResults(context.Background(), "R2024014", 2024)
	require.NoError(t, err)
	require.Len(t, players, 5)

	assert.Equal(t, "TournamentPastResults", got.OperationName)
	assert.Equal(t, "R2024014", got.Variables["tournamentPastResultsId"])
	assert.EqualValues(t, 2024, got.Variables["year"])
	assert.False(t, players[3].Position.Valid)
}

func TestClientMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	})

	_, err := client.PastResults(context.Background(), "R2024014", 2024)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientUpstreamStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.StatDetails(context.Background(), "02675", 2024)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClientGraphQLErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"statDetails":null},"errors":[{"message":"bad statId"}]}`))
	})

	_, err := client.StatDetails(context.Background(), "nope", 2024)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "bad statId")
}

func TestParsePastResults(t *testing.T) {
	var resp pastResultsResponse
	require.NoError(t, json.Unmarshal([]byte(pastResultsBody), &resp))

	names := golf.NewNormalizer(nil, map[string]string{"Ludvig Aberg": "Ludvig Åberg"})
	rows := ParsePastResults(resp.Data.TournamentPastResults.Players, EventMeta{
		Season:     2024,
		EndingDate: golf.MustParseDate("2024-04-14"),
		TournID:    "R2024014",
		Tournament: "Masters Tournament",
		Course:     "Augusta National Golf Club",
	}, names)

	require.Len(t, rows, 3)

	winner := rows[0]
	assert.Equal(t, "Scottie Scheffler", winner.Player)
	assert.Equal(t, 1, winner.FinalPos)
	assert.Equal(t, "-4", winner.Round4.String)
	assert.Equal(t, "750.000", winner.FedexCupPoints.String)
	assert.Equal(t, "$3,600,000", winner.OfficialMoney.String)

	second := rows[1]
	assert.Equal(t, "Ludvig Åberg", second.Player)
	assert.Equal(t, "T2", second.Pos)
	assert.Equal(t, 2, second.FinalPos)
	assert.False(t, second.Round2.Valid)
	assert.False(t, second.OfficialMoney.Valid)

	cut := rows[2]
	assert.Equal(t, golf.MissedCutPosition, cut.FinalPos)
	assert.False(t, cut.FedexCupPoints.Valid)
}

func TestParseStatValues(t *testing.T) {
	cases := []struct {
		in    FlexString
		value float64
		valid bool
	}{
		{FlexString{String: "2.145", Valid: true}, 2.145, true},
		{FlexString{String: "68.52%", Valid: true}, 68.52, true},
		{FlexString{String: "$1,234,567", Valid: true}, 1234567, true},
		{FlexString{String: "-0.412", Valid: true}, -0.412, true},
		{FlexString{String: "-", Valid: true}, 0, false},
		{FlexString{}, 0, false},
	}
	for _, c := range cases {
		got := parseStatValue(c.in)
		assert.Equal(t, c.valid, got.Valid, c.in.String)
		if c.valid {
			assert.InDelta(t, c.value, got.Float64, 1e-9, c.in.String)
		}
	}

	assert.Equal(t, int64(12), parseRank(FlexString{String: "T12", Valid: true}).Int64)
	assert.Equal(t, int64(3), parseRank(FlexString{String: "3", Valid: true}).Int64)
	assert.False(t, parseRank(FlexString{String: "", Valid: true}).Valid)
}

func TestFlexStringAcceptsNumbers(t *testing.T) {
	var row StatRow
	require.NoError(t, json.Unmarshal([]byte(`{"playerName":"Xander Schauffele","rank":4,"stats":[{"statValue":1.873}]}`), &row))

	parsed := ParseStatRows([]StatRow{row})
	require.Len(t, parsed, 1)
	assert.Equal(t, int64(4), parsed[0].Value.Rank.Int64)
	assert.InDelta(t, 1.873, parsed[0].Value.Value.Float64, 1e-9)
}

func TestMergeCategoriesOuterJoins(t *testing.T) {
	var frames [golf.NumStatCategories][]CategoryRow
	frames[0] = ParseStatRows([]StatRow{
		{PlayerName: "A Player", Rank: FlexString{String: "1", Valid: true}, Stats: statCells("2.1")},
		{PlayerName: "B Player", Rank: FlexString{String: "2", Valid: true}, Stats: statCells("1.9")},
	})
	frames[14] = ParseStatRows([]StatRow{
		{PlayerName: "C Player", Rank: FlexString{String: "7", Valid: true}, Stats: statCells("10.5")},
		{PlayerName: "A Player", Rank: FlexString{String: "9", Valid: true}, Stats: statCells("8.0")},
	})

	stats := MergeCategories(2024, frames, nil)
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"A Player", "B Player", "C Player"}, []string{stats[0].Player, stats[1].Player, stats[2].Player})

	a := stats[0]
	assert.Equal(t, 2024, a.Season)
	assert.Equal(t, int64(1), a.Values[0].Rank.Int64)
	assert.InDelta(t, 8.0, a.Values[14].Value.Float64, 1e-9)
	assert.False(t, a.Values[5].Rank.Valid)

	c := stats[2]
	assert.False(t, c.Values[0].Value.Valid)
	assert.Equal(t, int64(7), c.Values[14].Rank.Int64)
}

func statCells(v string) []struct {
	StatValue FlexString `json:"statValue"`
} {
	return []struct {
		StatValue FlexString `json:"statValue"`
	}{{StatValue: FlexString{String: v, Valid: true}}}
}

type failingResults struct{}

func (failingResults) PastResults(context.Context, string, int) ([]PastResultPlayer, error) {
	return nil, errors.New("connection reset")
}

func TestResultsIngesterAppendsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pastResultsBody))
	})
	repo := repository.NewTournamentRepository(storetest.Open(t))
	m := metrics.New()
	ing := NewResultsIngester(client, repo, golf.NewNormalizer(nil, nil), m, zerolog.Nop())

	res, err := ing.IngestEvent(ctx, masters())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 3, res.Parsed)
	assert.Equal(t, 3, res.Inserted)
	assert.False(t, res.Degraded)

	res, err = ing.IngestEvent(ctx, masters())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	n, err := repo.CountBySeason(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResultsIngesterDegradesOnFetchFailure(t *testing.T) {
	repo := repository.NewTournamentRepository(storetest.Open(t))
	m := metrics.New()
	ing := NewResultsIngester(failingResults{}, repo, nil, m, zerolog.Nop())

	res, err := ing.IngestEvent(context.Background(), masters())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 0, res.Inserted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `caddie_ingest_fetch_failures_total{source="pgatour_results"} 1`)
}

func TestResultsIngesterRejectsBadScheduleDate(t *testing.T) {
	ing := NewResultsIngester(failingResults{}, nil, nil, nil, zerolog.Nop())
	ev := masters()
	ev.Date = "2024-04-14"

	_, err := ing.IngestEvent(context.Background(), ev)
	assert.Error(t, err)
}

type fakeStats struct {
	calls atomic.Int32
	rows  map[string][]StatRow
}

func (f *fakeStats) StatDetails(_ context.Context, statID string, _ int) ([]StatRow, error) {
	f.calls.Add(1)
	rows, ok := f.rows[statID]
	if !ok {
		return nil, errors.New("timeout")
	}
	return rows, nil
}

func TestStatsIngesterReplacesSeason(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewStatsRepository(storetest.Open(t))

	src := &fakeStats{rows: map[string][]StatRow{
		golf.StatCategories[0].ID: {{PlayerName: "A Player", Rank: FlexString{String: "1", Valid: true}, Stats: statCells("2.0")}},
		golf.StatCategories[1].ID: {{PlayerName: "B Player", Rank: FlexString{String: "5", Valid: true}, Stats: statCells("0.5")}},
	}}
	ing := NewStatsIngester(src, repo, nil, 4, nil, zerolog.Nop())

	res, err := ing.IngestSeason(ctx, 2024)
	require.NoError(t, err)
	assert.EqualValues(t, golf.NumStatCategories, src.calls.Load())
	assert.Equal(t, 2, res.Inserted)
	assert.True(t, res.Degraded)

	stored, err := repo.ListBySeason(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestStatsIngesterKeepsSeasonWhenEverythingFails(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewStatsRepository(storetest.Open(t))

	_, err := repo.ReplaceSeason(ctx, 2024, []store.SeasonStat{{Season: 2024, Player: "Kept Player"}})
	require.NoError(t, err)

	ing := NewStatsIngester(&fakeStats{}, repo, nil, 2, nil, zerolog.Nop())
	res, err := ing.IngestSeason(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	stored, err := repo.ListBySeason(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Kept Player", stored[0].Player)
}
