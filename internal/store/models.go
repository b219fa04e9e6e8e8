package store

import (
	"database/sql"

	"github.com/fortuna/caddie/internal/golf"
)

// TournamentResult is one player's finish in one event.
type TournamentResult struct {
	Season         int            `json:"season" db:"season"`
	EndingDate     golf.Date      `json:"ending_date" db:"ending_date"`
	TournID        string         `json:"tourn_id" db:"tourn_id"`
	Tournament     string         `json:"tournament" db:"tournament"`
	Course         string         `json:"course" db:"course"`
	Player         string         `json:"player" db:"player"`
	Pos            string         `json:"pos" db:"pos"`
	FinalPos       int            `json:"final_pos" db:"final_pos"`
	Round1         sql.NullString `json:"round_1,omitempty" db:"round_1"`
	Round2         sql.NullString `json:"round_2,omitempty" db:"round_2"`
	Round3         sql.NullString `json:"round_3,omitempty" db:"round_3"`
	Round4         sql.NullString `json:"round_4,omitempty" db:"round_4"`
	OfficialMoney  sql.NullString `json:"official_money,omitempty" db:"official_money"`
	FedexCupPoints sql.NullString `json:"fedex_cup_points,omitempty" db:"fedex_cup_points"`
}

// Key returns the anti-duplication key of the row.
func (r TournamentResult) Key() ResultKey {
	return ResultKey{EndingDate: r.EndingDate, Tournament: r.Tournament, Player: r.Player}
}

// ResultKey is the primary key of the tournaments table.
type ResultKey struct {
	EndingDate golf.Date
	Tournament string
	Player     string
}

// Event identifies one played tournament instance.
type Event struct {
	Season     int       `json:"season"`
	EndingDate golf.Date `json:"ending_date"`
	TournID    string    `json:"tourn_id"`
	Tournament string    `json:"tournament"`
	Course     string    `json:"course"`
}

// Key returns the typed lookup key used for per-event feature snapshots.
func (e Event) Key() EventKey {
	return EventKey{EndingDate: e.EndingDate, Tournament: e.Tournament}
}

// EventKey identifies an event by end date and canonical tournament name.
type EventKey struct {
	EndingDate golf.Date
	Tournament string
}

// StatValue is one category's rank/value pair; both may be missing.
type StatValue struct {
	Rank  sql.NullInt64   `json:"rank"`
	Value sql.NullFloat64 `json:"value"`
}

// SeasonStat is one player's season aggregate across every tracked category,
// indexed in golf.StatCategories order.
type SeasonStat struct {
	Season int                               `json:"season"`
	Player string                            `json:"player"`
	Values [golf.NumStatCategories]StatValue `json:"values"`
}

// OddsQuote is one player's pre-tournament odds for one event.
// EndingDate is zero for current-week quotes.
type OddsQuote struct {
	Season     int       `json:"season" db:"season"`
	Tournament string    `json:"tournament" db:"tournament"`
	EndingDate golf.Date `json:"ending_date" db:"ending_date"`
	Player     string    `json:"player" db:"player"`
	Odds       string    `json:"odds" db:"odds"`
	VegasOdds  float64   `json:"vegas_odds" db:"vegas_odds"`
}

// Key returns the anti-join key used by odds imports.
func (q OddsQuote) Key() OddsKey {
	return OddsKey{Season: q.Season, Tournament: q.Tournament, EndingDate: q.EndingDate, Player: q.Player}
}

// OddsKey is the append-only dedupe key for odds.
type OddsKey struct {
	Season     int
	Tournament string
	EndingDate golf.Date
	Player     string
}
