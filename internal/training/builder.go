package training

import (
	"context"
	"fmt"

	"github.com/fortuna/caddie/internal/features"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
)

// ResultSource lists the stored results of one event.
type ResultSource interface {
	ListByEvent(ctx context.Context, endingDate golf.Date, tournament string) ([]store.TournamentResult, error)
}

// StatsSource lists a season's player stats.
type StatsSource interface {
	ListBySeason(ctx context.Context, season int) ([]store.SeasonStat, error)
}

// OddsSource lists the odds quoted for a tournament in a season.
type OddsSource interface {
	ListBySeasonTournament(ctx context.Context, season int, tournament string) ([]store.OddsQuote, error)
}

// FeatureSource computes rolling features for a batch of events.
type FeatureSource interface {
	Build(ctx context.Context, events []store.Event) (features.Snapshots, error)
}

// Builder joins results, stats, odds and rolling features into training rows.
type Builder struct {
	results  ResultSource
	stats    StatsSource
	odds     OddsSource
	features FeatureSource
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewBuilder creates a training row builder.
func NewBuilder(results ResultSource, stats StatsSource, odds OddsSource, feats FeatureSource, m *metrics.Metrics, logger zerolog.Logger) *Builder {
	return &Builder{
		results:  results,
		stats:    stats,
		odds:     odds,
		features: feats,
		metrics:  m,
		logger:   logger.With().Str("component", "training-builder").Logger(),
	}
}

// Build returns one row per stored result of every event. Events without stored
// results are skipped.
func (b *Builder) Build(ctx context.Context, events []store.Event) ([]Row, error) {
	snaps, err := b.features.Build(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("building features: %w", err)
	}

	seasonStats := make(map[int]map[string]store.SeasonStat)
	var rows []Row

	for _, ev := range events {
		results, err := b.results.ListByEvent(ctx, ev.EndingDate, ev.Tournament)
		if err != nil {
			return nil, fmt.Errorf("loading results for %s %s: %w", ev.Tournament, ev.EndingDate, err)
		}
		if len(results) == 0 {
			b.logger.Debug().Str("tournament", ev.Tournament).Stringer("ending_date", ev.EndingDate).Msg("no stored results, skipping event")
			continue
		}

		stats, ok := seasonStats[ev.Season]
		if !ok {
			list, err := b.stats.ListBySeason(ctx, ev.Season)
			if err != nil {
				return nil, fmt.Errorf("loading season %d stats: %w", ev.Season, err)
			}
			stats = make(map[string]store.SeasonStat, len(list))
			for _, s := range list {
				stats[s.Player] = s
			}
			seasonStats[ev.Season] = stats
		}

		quotes, err := b.odds.ListBySeasonTournament(ctx, ev.Season, ev.Tournament)
		if err != nil {
			return nil, fmt.Errorf("loading odds for %s: %w", ev.Tournament, err)
		}
		odds := pickOdds(quotes, ev.EndingDate)

		for _, res := range results {
			rows = append(rows, buildRow(res, stats, odds, snaps.Lookup(ev.Key(), res.Player)))
		}
	}

	b.metrics.TrainingRowsBuilt(len(rows))
	b.logger.Info().Int("events", len(events)).Int("rows", len(rows)).Msg("training rows built")
	return rows, nil
}

// pickOdds keeps one quote per player: a quote dated for this event wins over an
// undated or differently dated one, then the lowest decimal odds.
func pickOdds(quotes []store.OddsQuote, endingDate golf.Date) map[string]float64 {
	type pick struct {
		exact bool
		odds  float64
	}
	best := make(map[string]pick, len(quotes))
	for _, q := range quotes {
		cand := pick{exact: q.EndingDate == endingDate, odds: q.VegasOdds}
		cur, ok := best[q.Player]
		if !ok || (cand.exact && !cur.exact) || (cand.exact == cur.exact && cand.odds < cur.odds) {
			best[q.Player] = cand
		}
	}

	out := make(map[string]float64, len(best))
	for player, p := range best {
		out[player] = p.odds
	}
	return out
}

func buildRow(res store.TournamentResult, stats map[string]store.SeasonStat, odds map[string]float64, feat features.Player) Row {
	row := Row{
		Season:     res.Season,
		EndingDate: res.EndingDate,
		Tournament: res.Tournament,
		Course:     res.Course,
		Player:     res.Player,
		Pos:        res.Pos,
		FinalPos:   res.FinalPos,
		Top20:      res.FinalPos <= golf.Top20Threshold,
	}

	if st, ok := stats[res.Player]; ok {
		for i, v := range st.Values {
			if v.Rank.Valid {
				row.Stats[i].Rank = ptr(int(v.Rank.Int64))
			}
			if v.Value.Valid {
				row.Stats[i].Value = ptr(v.Value.Float64)
			}
		}
	}
	if o, ok := odds[res.Player]; ok {
		row.VegasOdds = ptr(o)
	}

	if c := feat.Cut; c != nil {
		row.CutPct = ptr(c.CutPct)
		row.FedexCupPoints = ptr(c.Points)
		row.FormDensity = ptr(c.FormDensity)
		row.CutStreak = ptr(c.Streak)
		row.CutEvents = ptr(c.EventsPlayed)
	}
	if f := feat.Form; f != nil {
		row.RecentForm = ptr(f.Mean)
		row.AdjForm = ptr(f.Adjusted)
		row.FormEvents = ptr(f.EventsPlayed)
	}
	if c := feat.Course; c != nil {
		row.CourseHistory = ptr(c.Mean)
		row.AdjCH = ptr(c.Adjusted)
		row.CourseEvents = ptr(c.EventsPlayed)
	}
	return row
}

func ptr[T any](v T) *T { return &v }
