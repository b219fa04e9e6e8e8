package golfodds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/ingest"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
)

// Fetcher returns the HTML of an odds page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, render bool) (string, error)
}

// OddsWriter persists odds append-only.
type OddsWriter interface {
	InsertMissing(ctx context.Context, quotes []store.OddsQuote) (int, error)
}

// Cache stores JSON values with a TTL. A miss is reported as ok=false.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var _ Fetcher = (*Client)(nil)

// Config configures the ingester.
type Config struct {
	ArchiveURL string // fmt pattern taking the archive year
	CurrentURL string
	TableIndex int
	RenderJS   bool
	CurrentTTL time.Duration
	Excluded   []string // team events, matched as case-insensitive substrings
}

// Ingester imports historical and current-week odds.
type Ingester struct {
	fetcher Fetcher
	repo    OddsWriter
	cache   Cache
	names   *golf.Normalizer
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewIngester creates an odds ingester. cache may be nil.
func NewIngester(fetcher Fetcher, repo OddsWriter, cache Cache, names *golf.Normalizer, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Ingester {
	return &Ingester{
		fetcher: fetcher,
		repo:    repo,
		cache:   cache,
		names:   names,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "odds-ingester").Logger(),
	}
}

// ImportHistorical loads one archive page and appends quotes not stored yet.
// A fetch failure degrades to an empty result; a missing table is a hard error.
func (i *Ingester) ImportHistorical(ctx context.Context, archiveYear string, season int) (*ingest.Result, error) {
	result := &ingest.Result{Source: "odds"}
	url := fmt.Sprintf(i.cfg.ArchiveURL, archiveYear)
	log := i.logger.With().Str("archive", archiveYear).Int("season", season).Logger()

	html, err := i.fetcher.Fetch(ctx, url, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("failed to fetch odds archive")
		i.metrics.FetchFailed("golfodds")
		result.Degraded = true
		return result, nil
	}

	quotes, fetched, err := i.parse(html, season, true)
	if err != nil {
		return nil, fmt.Errorf("odds archive %s: %w", archiveYear, err)
	}
	result.Fetched = fetched
	result.Parsed = len(quotes)

	inserted, err := i.repo.InsertMissing(ctx, quotes)
	if err != nil {
		return nil, fmt.Errorf("storing odds for season %d: %w", season, err)
	}
	result.Inserted = inserted
	i.metrics.RowsInserted("odds", inserted)

	if inserted == 0 {
		log.Info().Msg("historical odds already exist, no new rows added")
	} else {
		log.Info().Int("inserted", inserted).Msg("historical odds imported")
	}
	return result, nil
}

// CurrentWeek returns this week's quotes, served from cache when fresh. The quotes
// carry no ending date. A non-empty tournament filters to that event.
func (i *Ingester) CurrentWeek(ctx context.Context, season int, tournament string) ([]store.OddsQuote, error) {
	key := "caddie:odds:current:" + strconv.Itoa(season)

	var quotes []store.OddsQuote
	hit := false
	if i.cache != nil {
		ok, err := i.cache.GetJSON(ctx, key, &quotes)
		if err != nil {
			i.logger.Warn().Err(err).Msg("odds cache read failed")
		}
		hit = ok
	}

	if !hit {
		html, err := i.fetcher.Fetch(ctx, i.cfg.CurrentURL, i.cfg.RenderJS)
		if err != nil {
			i.metrics.FetchFailed("golfodds_current")
			return nil, err
		}
		quotes, _, err = i.parse(html, season, false)
		if err != nil {
			return nil, fmt.Errorf("current odds: %w", err)
		}
		for n := range quotes {
			quotes[n].EndingDate = golf.Date{}
		}
		if i.cache != nil {
			if err := i.cache.SetJSON(ctx, key, quotes, i.cfg.CurrentTTL); err != nil {
				i.logger.Warn().Err(err).Msg("odds cache write failed")
			}
		}
	}

	if tournament == "" {
		return quotes, nil
	}
	want := i.names.Tournament(golf.CleanName(tournament))
	filtered := quotes[:0:0]
	for _, q := range quotes {
		if q.Tournament == want {
			filtered = append(filtered, q)
		}
	}
	return filtered, nil
}

// SaveCurrentWeek persists this week's quotes append-only.
func (i *Ingester) SaveCurrentWeek(ctx context.Context, season int, tournament string) (*ingest.Result, error) {
	quotes, err := i.CurrentWeek(ctx, season, tournament)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, errors.New("no current-week odds found")
	}

	inserted, err := i.repo.InsertMissing(ctx, quotes)
	if err != nil {
		return nil, fmt.Errorf("storing current odds: %w", err)
	}
	i.metrics.RowsInserted("odds", inserted)
	i.logger.Info().Int("season", season).Int("inserted", inserted).Msg("current-week odds saved")

	return &ingest.Result{Source: "odds_current", Fetched: len(quotes), Parsed: len(quotes), Inserted: inserted}, nil
}

func (i *Ingester) parse(html string, season int, requireDate bool) ([]store.OddsQuote, int, error) {
	rows, err := ExtractRows(html, i.cfg.TableIndex)
	if err != nil {
		return nil, 0, err
	}
	raw := Scan(Tag(rows))

	cleaner := Cleaner{Names: i.names, Excluded: i.cfg.Excluded, RequireDate: requireDate}
	quotes, dropped := cleaner.Clean(season, raw)
	i.metrics.RowsDropped("golfodds", dropped)
	if dropped > 0 {
		i.logger.Debug().Int("dropped", dropped).Msg("odds rows dropped during cleanup")
	}
	return quotes, len(raw), nil
}
