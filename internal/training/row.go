// Package training assembles the denormalized per-(event, player) training matrix.
package training

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/fortuna/caddie/internal/golf"
)

// StatFeature is one season stat category for the row's player.
type StatFeature struct {
	Rank  *int     `json:"rank"`
	Value *float64 `json:"value"`
}

// Row is one player's finish in one event with every joined feature. Pointer
// fields are nil when the corresponding join found nothing.
type Row struct {
	Season     int       `json:"season"`
	EndingDate golf.Date `json:"ending_date"`
	Tournament string    `json:"tournament"`
	Course     string    `json:"course"`
	Player     string    `json:"player"`
	Pos        string    `json:"pos"`
	FinalPos   int       `json:"final_pos"`

	Stats     [golf.NumStatCategories]StatFeature `json:"stats"`
	VegasOdds *float64                            `json:"vegas_odds"`

	CutPct         *float64 `json:"cut_pct"`
	FedexCupPoints *float64 `json:"fedex_cup_points"` // summed over the cut window
	FormDensity    *float64 `json:"form_density"`
	CutStreak      *int     `json:"cut_streak"`
	CutEvents      *int     `json:"cut_events"`

	RecentForm *float64 `json:"recent_form"`
	AdjForm    *float64 `json:"adj_form"`
	FormEvents *int     `json:"form_events"`

	CourseHistory *float64 `json:"course_history"`
	AdjCH         *float64 `json:"adj_ch"`
	CourseEvents  *int     `json:"course_events"`

	Top20 bool `json:"top20"`
}

// Columns returns the CSV header in output order.
func Columns() []string {
	cols := []string{"season", "ending_date", "tournament", "course", "player", "pos", "final_pos"}
	for _, c := range golf.StatCategories {
		cols = append(cols, c.Column+"_rank", c.Column)
	}
	return append(cols,
		"vegas_odds",
		"cut_pct", "fedex_cup_points", "form_density", "cut_streak", "cut_events",
		"recent_form", "adj_form", "form_events",
		"course_history", "adj_ch", "course_events",
		"top20",
	)
}

// Record renders the row in Columns order. Missing values are empty strings.
func (r Row) Record() []string {
	rec := []string{
		strconv.Itoa(r.Season),
		r.EndingDate.String(),
		r.Tournament,
		r.Course,
		r.Player,
		r.Pos,
		strconv.Itoa(r.FinalPos),
	}
	for _, s := range r.Stats {
		rec = append(rec, formatInt(s.Rank), formatFloat(s.Value))
	}
	label := "0"
	if r.Top20 {
		label = "1"
	}
	return append(rec,
		formatFloat(r.VegasOdds),
		formatFloat(r.CutPct), formatFloat(r.FedexCupPoints), formatFloat(r.FormDensity), formatInt(r.CutStreak), formatInt(r.CutEvents),
		formatFloat(r.RecentForm), formatFloat(r.AdjForm), formatInt(r.FormEvents),
		formatFloat(r.CourseHistory), formatFloat(r.AdjCH), formatInt(r.CourseEvents),
		label,
	)
}

// WriteCSV writes a header line followed by one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
