package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
)

const resultColumns = `season, ending_date, tourn_id, tournament, course, player, pos, final_pos,
	round_1, round_2, round_3, round_4, official_money, fedex_cup_points`

// TournamentRepository handles tournament result data access
type TournamentRepository struct {
	db *store.Database
}

// NewTournamentRepository creates a new tournament repository
func NewTournamentRepository(db *store.Database) *TournamentRepository {
	return &TournamentRepository{db: db}
}

// InsertMissing appends the rows whose (ending_date, tournament, player) key is not stored yet.
// The whole batch runs in one transaction. Returns the number of inserted rows.
func (r *TournamentRepository) InsertMissing(ctx context.Context, results []store.TournamentResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := r.existingKeys(ctx, tx, results)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tournaments (`+resultColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("preparing result insert: %w", err)
		}
		defer stmt.Close()

		for _, res := range results {
			key := res.Key()
			if _, ok := existing[key]; ok {
				continue
			}
			existing[key] = struct{}{}

			out, err := stmt.ExecContext(ctx,
				res.Season, res.EndingDate, res.TournID, res.Tournament, res.Course, res.Player,
				res.Pos, res.FinalPos, res.Round1, res.Round2, res.Round3, res.Round4,
				res.OfficialMoney, res.FedexCupPoints,
			)
			if err != nil {
				return fmt.Errorf("inserting result for %s: %w", res.Player, err)
			}
			if n, err := out.RowsAffected(); err == nil {
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

func (r *TournamentRepository) existingKeys(ctx context.Context, tx *sql.Tx, results []store.TournamentResult) (map[store.ResultKey]struct{}, error) {
	events := make(map[store.EventKey]struct{})
	for _, res := range results {
		events[store.EventKey{EndingDate: res.EndingDate, Tournament: res.Tournament}] = struct{}{}
	}

	keys := make(map[store.ResultKey]struct{})
	for ev := range events {
		rows, err := tx.QueryContext(ctx,
			`SELECT player FROM tournaments WHERE ending_date = $1 AND tournament = $2`,
			ev.EndingDate, ev.Tournament,
		)
		if err != nil {
			return nil, fmt.Errorf("querying existing results: %w", err)
		}
		for rows.Next() {
			var player string
			if err := rows.Scan(&player); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning existing result: %w", err)
			}
			keys[store.ResultKey{EndingDate: ev.EndingDate, Tournament: ev.Tournament, Player: player}] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return keys, nil
}

// ListEvents returns every distinct event ordered by end date.
func (r *TournamentRepository) ListEvents(ctx context.Context) ([]store.Event, error) {
	query := `
		SELECT DISTINCT season, ending_date, tourn_id, tournament, course
		FROM tournaments
		ORDER BY ending_date, tournament
	`
	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindEvents returns the distinct events played at course OR named tournament.
func (r *TournamentRepository) FindEvents(ctx context.Context, course, tournament string) ([]store.Event, error) {
	query := `
		SELECT DISTINCT season, ending_date, tourn_id, tournament, course
		FROM tournaments
		WHERE course = $1 OR tournament = $2
		ORDER BY ending_date, tournament
	`
	rows, err := r.db.DB().QueryContext(ctx, query, course, tournament)
	if err != nil {
		return nil, fmt.Errorf("querying events for %s/%s: %w", course, tournament, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListByEvent returns every result of one event.
func (r *TournamentRepository) ListByEvent(ctx context.Context, endingDate golf.Date, tournament string) ([]store.TournamentResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM tournaments
		WHERE ending_date = $1 AND tournament = $2
		ORDER BY final_pos, player
	`
	rows, err := r.db.DB().QueryContext(ctx, query, endingDate, tournament)
	if err != nil {
		return nil, fmt.Errorf("querying event results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// ListWindow returns results with start <= ending_date <= end, optionally restricted to one course.
// Rows are ordered newest first.
func (r *TournamentRepository) ListWindow(ctx context.Context, start, end golf.Date, course string) ([]store.TournamentResult, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if course == "" {
		rows, err = r.db.DB().QueryContext(ctx, `
			SELECT `+resultColumns+`
			FROM tournaments
			WHERE ending_date BETWEEN $1 AND $2
			ORDER BY ending_date DESC, tournament
		`, start, end)
	} else {
		rows, err = r.db.DB().QueryContext(ctx, `
			SELECT `+resultColumns+`
			FROM tournaments
			WHERE course = $1 AND ending_date BETWEEN $2 AND $3
			ORDER BY ending_date DESC, tournament
		`, course, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("querying result window: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// CountBySeason returns the number of stored results for a season.
func (r *TournamentRepository) CountBySeason(ctx context.Context, season int) (int, error) {
	var n int
	err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tournaments WHERE season = $1`, season).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]store.Event, error) {
	var events []store.Event
	for rows.Next() {
		var ev store.Event
		if err := rows.Scan(&ev.Season, &ev.EndingDate, &ev.TournID, &ev.Tournament, &ev.Course); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanResults(rows *sql.Rows) ([]store.TournamentResult, error) {
	var results []store.TournamentResult
	for rows.Next() {
		var res store.TournamentResult
		err := rows.Scan(
			&res.Season, &res.EndingDate, &res.TournID, &res.Tournament, &res.Course, &res.Player,
			&res.Pos, &res.FinalPos, &res.Round1, &res.Round2, &res.Round3, &res.Round4,
			&res.OfficialMoney, &res.FedexCupPoints,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
