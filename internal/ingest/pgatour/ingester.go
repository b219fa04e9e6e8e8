package pgatour

import (
	"context"
	"fmt"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ResultsSource returns the raw leaderboard of a tournament instance.
type ResultsSource interface {
	PastResults(ctx context.Context, tournamentID string, year int) ([]PastResultPlayer, error)
}

// StatsSource returns one statistic category for a season.
type StatsSource interface {
	StatDetails(ctx context.Context, statID string, year int) ([]StatRow, error)
}

// ResultWriter persists result rows append-only.
type ResultWriter interface {
	InsertMissing(ctx context.Context, results []store.TournamentResult) (int, error)
}

// StatsWriter replaces a season of stats.
type StatsWriter interface {
	ReplaceSeason(ctx context.Context, season int, stats []store.SeasonStat) (int, error)
}

var (
	_ ResultsSource = (*Client)(nil)
	_ StatsSource   = (*Client)(nil)
)

// ResultsIngester loads tournament results into the store.
type ResultsIngester struct {
	source  ResultsSource
	repo    ResultWriter
	names   *golf.Normalizer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewResultsIngester creates a results ingester.
func NewResultsIngester(source ResultsSource, repo ResultWriter, names *golf.Normalizer, m *metrics.Metrics, logger zerolog.Logger) *ResultsIngester {
	return &ResultsIngester{
		source:  source,
		repo:    repo,
		names:   names,
		metrics: m,
		logger:  logger.With().Str("component", "results-ingester").Logger(),
	}
}

// IngestEvent fetches one scheduled event and appends the rows not stored yet.
// A failed fetch or an empty leaderboard is logged and returns a degraded/empty result
// with a nil error so callers can retry later.
func (i *ResultsIngester) IngestEvent(ctx context.Context, ev golf.ScheduledEvent) (*ingest.Result, error) {
	result := &ingest.Result{Source: "results"}

	endingDate, err := ev.EndingDate()
	if err != nil {
		return nil, err
	}

	log := i.logger.With().Str("tournament", ev.Name).Str("id", ev.ID).Int("season", ev.Season).Logger()
	log.Info().Msg("fetching tournament results")

	players, err := i.source.PastResults(ctx, ev.ID, ev.APIYear())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("results request failed")
		i.metrics.FetchFailed("pgatour_results")
		result.Degraded = true
		return result, nil
	}
	result.Fetched = len(players)
	if len(players) == 0 {
		log.Warn().Msg("no players found in response")
		return result, nil
	}

	rows := ParsePastResults(players, EventMeta{
		Season:     ev.Season,
		EndingDate: endingDate,
		TournID:    ev.ID,
		Tournament: ev.Name,
		Course:     ev.Course,
	}, i.names)
	result.Parsed = len(rows)
	i.metrics.RowsDropped("pgatour_results", len(players)-len(rows))

	inserted, err := i.repo.InsertMissing(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("storing results for %s: %w", ev.Name, err)
	}
	result.Inserted = inserted
	i.metrics.RowsInserted("tournaments", inserted)

	if inserted == 0 {
		log.Info().Msg("results already stored, no new rows")
	} else {
		log.Info().Int("inserted", inserted).Msg("results stored")
	}
	return result, nil
}

// StatsIngester loads a season of player statistics into the store.
type StatsIngester struct {
	source      StatsSource
	repo        StatsWriter
	names       *golf.Normalizer
	metrics     *metrics.Metrics
	concurrency int
	logger      zerolog.Logger
}

// NewStatsIngester creates a stats ingester fetching up to concurrency categories at once.
func NewStatsIngester(source StatsSource, repo StatsWriter, names *golf.Normalizer, concurrency int, m *metrics.Metrics, logger zerolog.Logger) *StatsIngester {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &StatsIngester{
		source:      source,
		repo:        repo,
		names:       names,
		metrics:     m,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "stats-ingester").Logger(),
	}
}

// IngestSeason fetches every category and replaces the season's stored stats.
// A failed category contributes an empty frame. When every category comes back empty
// the stored season is left untouched.
func (s *StatsIngester) IngestSeason(ctx context.Context, season int) (*ingest.Result, error) {
	result := &ingest.Result{Source: "stats"}

	var frames [golf.NumStatCategories][]CategoryRow
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for idx, cat := range golf.StatCategories {
		g.Go(func() error {
			rows, err := s.source.StatDetails(gctx, cat.ID, season)
			if err != nil {
				s.logger.Warn().Err(err).Str("stat", cat.Key).Int("season", season).Msg("failed to fetch stat category")
				s.metrics.FetchFailed("pgatour_stats")
				return nil
			}
			frames[idx] = ParseStatRows(rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, frame := range frames {
		result.Fetched += len(frame)
		if len(frame) == 0 {
			result.Degraded = true
		}
	}

	stats := MergeCategories(season, frames, s.names)
	result.Parsed = len(stats)
	if len(stats) == 0 {
		s.logger.Warn().Int("season", season).Msg("no stats returned, keeping stored season")
		return result, nil
	}

	inserted, err := s.repo.ReplaceSeason(ctx, season, stats)
	if err != nil {
		return nil, fmt.Errorf("storing season %d stats: %w", season, err)
	}
	result.Inserted = inserted
	s.metrics.RowsInserted("stats", inserted)

	s.logger.Info().Int("season", season).Int("players", inserted).Msg("season stats replaced")
	return result, nil
}
