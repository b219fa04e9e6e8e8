package golfodds

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
)

// ErrTableNotFound means the page no longer has the expected odds table.
var ErrTableNotFound = errors.New("odds table not found")

// Row is one table row: player or header text, and the odds cell ("" when empty).
type Row struct {
	Text string
	Odds string
}

// ExtractRows reads the first two cells of every row of the tableIndex-th table in
// document order. Rows of nested tables are ignored and fully empty rows are dropped.
func ExtractRows(html string, tableIndex int) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	tables := doc.Find("table")
	if tableIndex < 0 || tableIndex >= tables.Length() {
		return nil, fmt.Errorf("%w: index %d of %d tables", ErrTableNotFound, tableIndex, tables.Length())
	}
	table := tables.Eq(tableIndex)
	target := table.Get(0)

	var rows []Row
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != target {
			return
		}
		cells := tr.ChildrenFiltered("td, th")
		row := Row{Text: golf.CleanName(cells.Eq(0).Text())}
		if cells.Length() > 1 {
			row.Odds = golf.CleanName(cells.Eq(1).Text())
		}
		if row.Text == "" && row.Odds == "" {
			return
		}
		rows = append(rows, row)
	})
	return rows, nil
}

var (
	dateRange   = regexp.MustCompile(`\w+\s\d+\s*[-–]\s*(\w+\s)?\d+,\s\d{4}`)
	weekdayDate = regexp.MustCompile(`(?i)(mon|tues|wednes|thurs|fri|satur|sun)day,?\s+\w+\.?\s\d+,\s\d{4}`)

	crossMonth = regexp.MustCompile(`(\w+)\.?\s\d+\s*-\s*(\w+)\.?\s(\d+),\s(\d{4})`)
	sameMonth  = regexp.MustCompile(`(\w+)\.?\s\d+\s*-\s*(\d+),\s(\d{4})`)
	singleDay  = regexp.MustCompile(`(?i)day,?\s+(\w+)\.?\s(\d+),\s(\d{4})`)

	dashes = strings.NewReplacer("\u2013", "-", "\u2014", "-", "\u00a0", " ")
)

func normalizeDateText(text string) string {
	text = dashes.Replace(text)
	text = strings.ReplaceAll(text, "Match ", "March ")
	return strings.Join(strings.Fields(text), " ")
}

// IsDateLine reports whether text looks like a block's date line.
func IsDateLine(text string) bool {
	text = normalizeDateText(text)
	return dateRange.MatchString(text) || weekdayDate.MatchString(text)
}

// ParseEndingDate returns the last day of a block's date line. Supported forms are
// "July 30 - August 2, 2015", "Oct 29 - Nov 1, 2015", "November 21-24, 2024" and
// "Sunday, April 14, 2024".
func ParseEndingDate(text string) (golf.Date, bool) {
	text = normalizeDateText(text)

	if m := crossMonth.FindStringSubmatch(text); m != nil {
		if d, ok := monthDay(m[2], m[3], m[4]); ok {
			return d, true
		}
	}
	if m := sameMonth.FindStringSubmatch(text); m != nil {
		if d, ok := monthDay(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := singleDay.FindStringSubmatch(text); m != nil {
		if d, ok := monthDay(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return golf.Date{}, false
}

func monthDay(month, day, year string) (golf.Date, bool) {
	if strings.EqualFold(month, "Sept") {
		month = "Sep"
	}
	value := fmt.Sprintf("%s %s %s", month, day, year)
	for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return golf.DateOf(t), true
		}
	}
	return golf.Date{}, false
}

var (
	fraction  = regexp.MustCompile(`(\d+)/(\d+)`)
	dropLabel = map[string]struct{}{"DNS": {}, "WD": {}, "EVEN": {}, "XX": {}, "DNQ": {}, "ODDS TO WIN:": {}}
)

// ParseOdds converts fractional odds ("9/2", "1,000/1") to a decimal ratio.
// Labels, malformed strings and zero denominators are rejected.
func ParseOdds(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if _, ok := dropLabel[strings.ToUpper(s)]; ok {
		return 0, false
	}
	m := fraction.FindStringSubmatch(strings.ReplaceAll(s, ",", ""))
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(m[2], 64)
	if err != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

// TaggedRow is a row with the header decision already made. For headers, DateLine
// and Note carry the texts two and three rows ahead.
type TaggedRow struct {
	Row
	Header   bool
	DateLine string
	Note     string
}

func isHeader(rows []Row, i int) bool {
	if i+2 >= len(rows) {
		return false
	}
	return rows[i].Odds == "" && rows[i+1].Odds == "" && IsDateLine(rows[i+2].Text)
}

// Tag lazily yields rows with header detection applied.
func Tag(rows []Row) iter.Seq[TaggedRow] {
	return func(yield func(TaggedRow) bool) {
		for i, r := range rows {
			tr := TaggedRow{Row: r}
			if isHeader(rows, i) {
				tr.Header = true
				tr.DateLine = rows[i+2].Text
				if i+3 < len(rows) {
					tr.Note = rows[i+3].Text
				}
			}
			if !yield(tr) {
				return
			}
		}
	}
}

// RawQuote is a data row attributed to its block. EndingDate is zero when the
// block's date line could not be parsed.
type RawQuote struct {
	Tournament string
	EndingDate golf.Date
	Player     string
	Odds       string
}

// headerRows is the number of rows a block header spans.
const headerRows = 4

type scanState int

const (
	outsideBlock scanState = iota
	insideBlock
)

// Scan walks tagged rows and groups data rows under their block header.
// Cancelled blocks and repeated (name, date) headers are skipped whole.
func Scan(rows iter.Seq[TaggedRow]) []RawQuote {
	var (
		quotes   []RawQuote
		state    = outsideBlock
		skip     int
		current  RawQuote
		lastName string
		lastDate golf.Date
	)

	for r := range rows {
		if skip > 0 {
			skip--
			continue
		}

		if r.Header {
			name := r.Text
			date, _ := ParseEndingDate(r.DateLine)
			state = outsideBlock

			switch {
			case isCancelled(r.DateLine) || isCancelled(r.Note):
				skip = headerRows - 1
			case name == lastName && date == lastDate:
			default:
				lastName, lastDate = name, date
				current = RawQuote{Tournament: name, EndingDate: date}
				state = insideBlock
				skip = headerRows - 1
			}
			continue
		}

		if state == insideBlock && r.Odds != "" {
			q := current
			q.Player = r.Text
			q.Odds = r.Odds
			quotes = append(quotes, q)
		}
	}
	return quotes
}

func isCancelled(text string) bool {
	return strings.Contains(strings.ToLower(text), "cancelled")
}

var winnerMarker = regexp.MustCompile(`\s*\*Winner\*`)

// Cleaner turns raw quotes into canonical odds rows.
type Cleaner struct {
	Names    *golf.Normalizer
	Excluded []string
	// RequireDate drops quotes whose block date could not be parsed.
	RequireDate bool
}

// Clean normalizes names, converts odds and filters team events. It returns the
// kept quotes and the number of dropped rows.
func (c Cleaner) Clean(season int, raw []RawQuote) ([]store.OddsQuote, int) {
	out := make([]store.OddsQuote, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		tournament := c.Names.Tournament(golf.CleanName(r.Tournament))
		player := c.Names.Player(golf.CleanName(winnerMarker.ReplaceAllString(r.Player, "")))
		decimal, ok := ParseOdds(r.Odds)

		if !ok || player == "" || c.excluded(tournament) || (c.RequireDate && r.EndingDate.IsZero()) {
			dropped++
			continue
		}
		out = append(out, store.OddsQuote{
			Season:     season,
			Tournament: tournament,
			EndingDate: r.EndingDate,
			Player:     player,
			Odds:       r.Odds,
			VegasOdds:  decimal,
		})
	}
	return out, dropped
}

func (c Cleaner) excluded(tournament string) bool {
	t := strings.ToLower(tournament)
	for _, e := range c.Excluded {
		if e != "" && strings.Contains(t, strings.ToLower(e)) {
			return true
		}
	}
	return false
}
