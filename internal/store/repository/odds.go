package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/caddie/internal/store"
)

// OddsRepository handles odds data access
type OddsRepository struct {
	db *store.Database
}

// NewOddsRepository creates a new odds repository
func NewOddsRepository(db *store.Database) *OddsRepository {
	return &OddsRepository{db: db}
}

// OddsRename rewrites one stored quote under new names.
type OddsRename struct {
	From store.OddsQuote
	To   store.OddsQuote
}

// InsertMissing appends quotes whose (season, tournament, ending_date, player) key is new.
func (r *OddsRepository) InsertMissing(ctx context.Context, quotes []store.OddsQuote) (int, error) {
	if len(quotes) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		seasons := make(map[int]struct{})
		for _, q := range quotes {
			seasons[q.Season] = struct{}{}
		}

		existing := make(map[store.OddsKey]struct{})
		for season := range seasons {
			stored, err := queryOdds(ctx, tx, `
				SELECT season, tournament, ending_date, player, odds, vegas_odds
				FROM odds WHERE season = $1
			`, season)
			if err != nil {
				return err
			}
			for _, q := range stored {
				existing[q.Key()] = struct{}{}
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO odds (season, tournament, ending_date, player, odds, vegas_odds)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("preparing odds insert: %w", err)
		}
		defer stmt.Close()

		for _, q := range quotes {
			if _, ok := existing[q.Key()]; ok {
				continue
			}
			existing[q.Key()] = struct{}{}

			res, err := stmt.ExecContext(ctx, q.Season, q.Tournament, q.EndingDate, q.Player, q.Odds, q.VegasOdds)
			if err != nil {
				return fmt.Errorf("inserting odds for %s: %w", q.Player, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListBySeasonTournament returns the stored quotes of one tournament.
func (r *OddsRepository) ListBySeasonTournament(ctx context.Context, season int, tournament string) ([]store.OddsQuote, error) {
	return queryOdds(ctx, r.db.DB(), `
		SELECT season, tournament, ending_date, player, odds, vegas_odds
		FROM odds
		WHERE season = $1 AND tournament = $2
		ORDER BY vegas_odds, player
	`, season, tournament)
}

// ListAll returns every stored quote.
func (r *OddsRepository) ListAll(ctx context.Context) ([]store.OddsQuote, error) {
	return queryOdds(ctx, r.db.DB(), `
		SELECT season, tournament, ending_date, player, odds, vegas_odds
		FROM odds
		ORDER BY season, tournament, player, odds
	`)
}

// ApplyRenames rewrites quotes under their new names in one transaction. A renamed quote
// that collides with an already stored primary key is dropped.
func (r *OddsRepository) ApplyRenames(ctx context.Context, renames []OddsRename) (int, error) {
	if len(renames) == 0 {
		return 0, nil
	}

	written := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rn := range renames {
			_, err := tx.ExecContext(ctx, `
				DELETE FROM odds
				WHERE season = $1 AND tournament = $2 AND player = $3 AND odds = $4
			`, rn.From.Season, rn.From.Tournament, rn.From.Player, rn.From.Odds)
			if err != nil {
				return fmt.Errorf("deleting odds row for %s: %w", rn.From.Player, err)
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO odds (season, tournament, ending_date, player, odds, vegas_odds)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT DO NOTHING
			`, rn.To.Season, rn.To.Tournament, rn.To.EndingDate, rn.To.Player, rn.To.Odds, rn.To.VegasOdds)
			if err != nil {
				return fmt.Errorf("inserting renamed odds row for %s: %w", rn.To.Player, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryOdds(ctx context.Context, q queryer, query string, args ...interface{}) ([]store.OddsQuote, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying odds: %w", err)
	}
	defer rows.Close()

	var quotes []store.OddsQuote
	for rows.Next() {
		var oq store.OddsQuote
		if err := rows.Scan(&oq.Season, &oq.Tournament, &oq.EndingDate, &oq.Player, &oq.Odds, &oq.VegasOdds); err != nil {
			return nil, fmt.Errorf("scanning odds: %w", err)
		}
		quotes = append(quotes, oq)
	}
	return quotes, rows.Err()
}
