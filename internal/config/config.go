// Package config defines the service configuration and its defaults.
package config

import (
	"time"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	Database  DatabaseConfig        `koanf:"database"`
	Redis     RedisConfig           `koanf:"redis"`
	HTTP      HTTPConfig            `koanf:"http"`
	PGATour   PGATourConfig         `koanf:"pgatour"`
	Odds      OddsConfig            `koanf:"odds"`
	Features  FeaturesConfig        `koanf:"features"`
	Scheduler SchedulerConfig       `koanf:"scheduler"`
	Names     NamesConfig           `koanf:"names"`
	Log       logger.Config         `koanf:"log"`
	Schedule  []golf.ScheduledEvent `koanf:"schedule"`
}

// DatabaseConfig selects the SQL dialect. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// RedisConfig is optional; an empty URL disables caching and stream publishing.
type RedisConfig struct {
	URL string `koanf:"url"`
}

type HTTPConfig struct {
	Port    string        `koanf:"port"`
	WSPort  string        `koanf:"ws_port"`
	Timeout time.Duration `koanf:"timeout"`
}

// PGATourConfig configures the results and stats GraphQL source.
type PGATourConfig struct {
	Endpoint           string        `koanf:"endpoint"`
	APIKey             string        `koanf:"api_key"`
	RequestInterval    time.Duration `koanf:"request_interval"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	StatConcurrency    int           `koanf:"stat_concurrency"`
}

// OddsConfig configures the odds archive scraper.
type OddsConfig struct {
	ArchiveURL     string        `koanf:"archive_url"` // fmt pattern taking the archive year
	CurrentURL     string        `koanf:"current_url"`
	TableIndex     int           `koanf:"table_index"`
	RenderJS       bool          `koanf:"render_js"`
	CurrentTTL     time.Duration `koanf:"current_ttl"`
	ExcludedEvents []string      `koanf:"excluded_events"`
}

// FeaturesConfig holds the rolling window lengths.
type FeaturesConfig struct {
	CutWindowMonths   int `koanf:"cut_window_months"`
	FormWindowMonths  int `koanf:"form_window_months"`
	CourseWindowYears int `koanf:"course_window_years"`
}

// SchedulerConfig holds cron specs (with seconds) for the recurring refresh jobs.
type SchedulerConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Season        int    `koanf:"season"`
	StatsSpec     string `koanf:"stats_spec"`
	ResultsSpec   string `koanf:"results_spec"`
	OddsSpec      string `koanf:"odds_spec"`
	OddsArchive   string `koanf:"odds_archive"`
	CleanOddsSpec string `koanf:"clean_odds_spec"`
}

// NamesConfig holds the alias tables used to canonicalize scraped names.
type NamesConfig struct {
	Tournaments map[string]string `koanf:"tournaments"`
	Players     map[string]string `koanf:"players"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:caddie.db?_pragma=busy_timeout(5000)",
		},
		HTTP: HTTPConfig{
			Port:    "8090",
			WSPort:  "8091",
			Timeout: 30 * time.Second,
		},
		PGATour: PGATourConfig{
			Endpoint:        "https://orchestrator.pgatour.com/graphql",
			RequestInterval: 500 * time.Millisecond,
			StatConcurrency: 4,
		},
		Odds: OddsConfig{
			ArchiveURL: "http://golfodds.com/archives-%s.html",
			CurrentURL: "http://golfodds.com/weekly-odds.html",
			TableIndex: 4,
			CurrentTTL: 30 * time.Minute,
			ExcludedEvents: []string{
				"Presidents Cup",
				"Ryder Cup",
				"World Cup",
				"Zurich Classic",
			},
		},
		Features: FeaturesConfig{
			CutWindowMonths:   6,
			FormWindowMonths:  6,
			CourseWindowYears: 7,
		},
		Scheduler: SchedulerConfig{
			Enabled:       false,
			StatsSpec:     "0 0 6 * * MON",
			ResultsSpec:   "0 0 7 * * MON",
			OddsSpec:      "0 0 12 * * WED",
			CleanOddsSpec: "0 30 7 * * MON",
		},
		Names: NamesConfig{
			Tournaments: golf.DefaultTournamentNames(),
			Players:     golf.DefaultPlayerNames(),
		},
		Log: logger.Config{
			Level: "info",
		},
	}
}

// Normalizer builds the immutable name normalizer from the alias tables.
func (c *Config) Normalizer() *golf.Normalizer {
	return golf.NewNormalizer(c.Names.Tournaments, c.Names.Players)
}

// SeasonEvents returns the scheduled events of one season in configuration order.
func (c *Config) SeasonEvents(season int) []golf.ScheduledEvent {
	var out []golf.ScheduledEvent
	for _, ev := range c.Schedule {
		if ev.Season == season {
			out = append(out, ev)
		}
	}
	return out
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return wrapInvalid("database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return wrapInvalid("database.dsn must not be empty")
	}
	if c.HTTP.Port == "" {
		return wrapInvalid("http.port must not be empty")
	}
	if c.Features.CutWindowMonths <= 0 || c.Features.FormWindowMonths <= 0 || c.Features.CourseWindowYears <= 0 {
		return wrapInvalid("feature windows must be positive")
	}
	if c.Odds.TableIndex < 0 {
		return wrapInvalid("odds.table_index must not be negative")
	}
	for _, ev := range c.Schedule {
		if _, err := ev.EndingDate(); err != nil {
			return wrapInvalid("schedule: %v", err)
		}
	}
	return nil
}
