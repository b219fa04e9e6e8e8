package pgatour

import (
	"database/sql"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
)

// EventMeta is attached to every parsed result row.
type EventMeta struct {
	Season     int
	EndingDate golf.Date
	TournID    string
	Tournament string
	Course     string
}

// ParsePastResults converts leaderboard entries into result rows. Entries without a
// position are dropped.
func ParsePastResults(players []PastResultPlayer, meta EventMeta, names *golf.Normalizer) []store.TournamentResult {
	tournament := names.Tournament(golf.CleanName(meta.Tournament))

	results := make([]store.TournamentResult, 0, len(players))
	for _, p := range players {
		pos := strings.TrimSpace(p.Position.String)
		if !p.Position.Valid || pos == "" {
			continue
		}
		name := golf.CleanName(p.Player.DisplayName)
		if name == "" {
			continue
		}

		res := store.TournamentResult{
			Season:     meta.Season,
			EndingDate: meta.EndingDate,
			TournID:    meta.TournID,
			Tournament: tournament,
			Course:     meta.Course,
			Player:     names.Player(name),
			Pos:        pos,
			FinalPos:   golf.ParseFinalPosition(pos),
		}

		rounds := []*sql.NullString{&res.Round1, &res.Round2, &res.Round3, &res.Round4}
		for i, r := range p.Rounds {
			if i >= len(rounds) {
				break
			}
			*rounds[i] = nullString(r.ParRelativeScore)
		}
		if len(p.AdditionalData) > 0 {
			res.FedexCupPoints = nullString(p.AdditionalData[0])
		}
		if len(p.AdditionalData) > 1 {
			res.OfficialMoney = nullString(p.AdditionalData[1])
		}

		results = append(results, res)
	}
	return results
}

// CategoryRow is one player's rank/value in a single stat category.
type CategoryRow struct {
	Player string
	Value  store.StatValue
}

var (
	rankDigits   = regexp.MustCompile(`\d+`)
	numericValue = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

// ParseStatRows converts StatDetails rows, skipping rows without a player name.
func ParseStatRows(rows []StatRow) []CategoryRow {
	out := make([]CategoryRow, 0, len(rows))
	for _, r := range rows {
		name := golf.CleanName(r.PlayerName)
		if name == "" {
			continue
		}
		row := CategoryRow{Player: name}
		row.Value.Rank = parseRank(r.Rank)
		if len(r.Stats) > 0 {
			row.Value.Value = parseStatValue(r.Stats[0].StatValue)
		}
		out = append(out, row)
	}
	return out
}

// MergeCategories outer-joins the per-category frames on player name. A player absent
// from a category keeps a null rank and value there. Output is sorted by player.
func MergeCategories(season int, frames [golf.NumStatCategories][]CategoryRow, names *golf.Normalizer) []store.SeasonStat {
	byPlayer := make(map[string]*store.SeasonStat)
	for i, frame := range frames {
		for _, row := range frame {
			player := names.Player(row.Player)
			st, ok := byPlayer[player]
			if !ok {
				st = &store.SeasonStat{Season: season, Player: player}
				byPlayer[player] = st
			}
			// first row wins when a category lists a player twice
			if !st.Values[i].Rank.Valid && !st.Values[i].Value.Valid {
				st.Values[i] = row.Value
			}
		}
	}

	out := make([]store.SeasonStat, 0, len(byPlayer))
	for _, st := range byPlayer {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}

func parseRank(f FlexString) sql.NullInt64 {
	m := rankDigits.FindString(f.String)
	if !f.Valid || m == "" {
		return sql.NullInt64{}
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

// parseStatValue reads values such as "2.145", "68.52%", "1,234" or "$1,234,567".
func parseStatValue(f FlexString) sql.NullFloat64 {
	if !f.Valid {
		return sql.NullFloat64{}
	}
	s := strings.ReplaceAll(f.String, ",", "")
	m := numericValue.FindString(s)
	if m == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(f FlexString) sql.NullString {
	s := strings.TrimSpace(f.String)
	if !f.Valid || s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
