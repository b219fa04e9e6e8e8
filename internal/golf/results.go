package golf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MissedCutPosition is the numeric finish assigned to CUT, W/D and any other
// non-numeric position. It ranks below every made-cut finish.
const MissedCutPosition = 90

// Top20Threshold is the finishing position at or above which a row is labelled positive.
const Top20Threshold = 20

var positionDigits = regexp.MustCompile(`\d+`)

// ParseFinalPosition extracts the first integer run from a position string ("T5" -> 5).
func ParseFinalPosition(pos string) int {
	m := positionDigits.FindString(pos)
	if m == "" {
		return MissedCutPosition
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return MissedCutPosition
	}
	return n
}

// MadeCut reports whether a raw position string represents a made cut.
func MadeCut(pos string) bool {
	switch strings.ToUpper(strings.TrimSpace(pos)) {
	case "CUT", "W/D":
		return false
	}
	return true
}

// ParsePoints reads a points figure such as "1,234.5". Blank or invalid input counts as zero.
func ParsePoints(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ScheduledEvent is one configured tournament instance that results can be fetched for.
type ScheduledEvent struct {
	ID     string `koanf:"id" json:"id"`
	Name   string `koanf:"name" json:"name"`
	Course string `koanf:"course" json:"course"`
	Date   string `koanf:"date" json:"date"` // final round, MM/DD/YYYY
	Season int    `koanf:"season" json:"season"`
	Year   int    `koanf:"year" json:"year,omitempty"` // upstream API year when it differs from Season
}

// APIYear is the year passed to the results API.
func (e ScheduledEvent) APIYear() int {
	if e.Year != 0 {
		return e.Year
	}
	return e.Season
}

// EndingDate parses Date.
func (e ScheduledEvent) EndingDate() (Date, error) {
	t, err := time.Parse("01/02/2006", strings.TrimSpace(e.Date))
	if err != nil {
		return Date{}, fmt.Errorf("event %s: invalid date %q: %w", e.ID, e.Date, err)
	}
	return DateOf(t), nil
}
