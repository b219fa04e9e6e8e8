// Package reconciliation brings stored rows in line with the current name maps.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/internal/store/repository"
	"github.com/rs/zerolog"
)

// OddsStore is the odds persistence the cleaner needs.
type OddsStore interface {
	ListAll(ctx context.Context) ([]store.OddsQuote, error)
	ApplyRenames(ctx context.Context, renames []repository.OddsRename) (int, error)
}

// Stats tracks cleanup runs
type Stats struct {
	Scanned   int       `json:"scanned"`
	Renamed   int       `json:"renamed"`
	Written   int       `json:"written"`
	Collided  int       `json:"collided"` // renamed rows dropped because the new key already existed
	LastRunAt time.Time `json:"last_run_at"`
}

// OddsNameCleaner re-applies the name maps to stored odds, fixing rows imported
// before a mapping was added.
type OddsNameCleaner struct {
	odds   OddsStore
	names  *golf.Normalizer
	logger zerolog.Logger
}

// NewOddsNameCleaner creates a cleaner
func NewOddsNameCleaner(odds OddsStore, names *golf.Normalizer, logger zerolog.Logger) *OddsNameCleaner {
	return &OddsNameCleaner{
		odds:   odds,
		names:  names,
		logger: logger.With().Str("component", "odds-cleaner").Logger(),
	}
}

// Clean rewrites every stored quote whose tournament or player name maps to a
// different canonical name. All rewrites happen in one transaction.
func (c *OddsNameCleaner) Clean(ctx context.Context) (*Stats, error) {
	quotes, err := c.odds.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading odds: %w", err)
	}

	stats := &Stats{Scanned: len(quotes), LastRunAt: time.Now().UTC()}

	var renames []repository.OddsRename
	for _, q := range quotes {
		to := q
		to.Tournament = c.names.Tournament(golf.CleanName(q.Tournament))
		to.Player = c.names.Player(golf.CleanName(q.Player))
		if to.Tournament == q.Tournament && to.Player == q.Player {
			continue
		}
		renames = append(renames, repository.OddsRename{From: q, To: to})
	}
	stats.Renamed = len(renames)

	if len(renames) == 0 {
		c.logger.Info().Int("scanned", stats.Scanned).Msg("no odds rows required name cleanup")
		return stats, nil
	}

	written, err := c.odds.ApplyRenames(ctx, renames)
	if err != nil {
		return nil, fmt.Errorf("rewriting odds names: %w", err)
	}
	stats.Written = written
	stats.Collided = stats.Renamed - written

	c.logger.Info().
		Int("renamed", stats.Renamed).
		Int("written", stats.Written).
		Int("collided", stats.Collided).
		Msg("cleaned odds names")
	return stats, nil
}
