package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
)

// StatsRepository handles season stats data access
type StatsRepository struct {
	db *store.Database
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *store.Database) *StatsRepository {
	return &StatsRepository{db: db}
}

// statColumns lists season, player, then <col>_rank, <col> per category.
func statColumns() []string {
	cols := []string{"season", "player"}
	for _, c := range golf.StatCategories {
		cols = append(cols, c.Column+"_rank", c.Column)
	}
	return cols
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

// ReplaceSeason deletes every stored row of the season and inserts stats in its place,
// inside one transaction.
func (r *StatsRepository) ReplaceSeason(ctx context.Context, season int, stats []store.SeasonStat) (int, error) {
	cols := statColumns()
	insert := fmt.Sprintf("INSERT INTO stats (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders(len(cols)))

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stats WHERE season = $1`, season); err != nil {
			return fmt.Errorf("deleting season %d stats: %w", season, err)
		}

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("preparing stats insert: %w", err)
		}
		defer stmt.Close()

		seen := make(map[string]struct{}, len(stats))
		for _, st := range stats {
			if st.Season != season {
				return fmt.Errorf("stat row for %s has season %d, want %d", st.Player, st.Season, season)
			}
			if _, dup := seen[st.Player]; dup {
				continue
			}
			seen[st.Player] = struct{}{}

			args := make([]interface{}, 0, len(cols))
			args = append(args, st.Season, st.Player)
			for _, v := range st.Values {
				args = append(args, v.Rank, v.Value)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("inserting stats for %s: %w", st.Player, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListBySeason returns every player's stats for a season.
func (r *StatsRepository) ListBySeason(ctx context.Context, season int) ([]store.SeasonStat, error) {
	query := fmt.Sprintf("SELECT %s FROM stats WHERE season = $1 ORDER BY player", strings.Join(statColumns(), ", "))

	rows, err := r.db.DB().QueryContext(ctx, query, season)
	if err != nil {
		return nil, fmt.Errorf("querying season stats: %w", err)
	}
	defer rows.Close()

	var stats []store.SeasonStat
	for rows.Next() {
		var st store.SeasonStat
		dest := []interface{}{&st.Season, &st.Player}
		for i := range st.Values {
			dest = append(dest, &st.Values[i].Rank, &st.Values[i].Value)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning season stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
