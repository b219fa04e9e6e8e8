// Package features computes rolling per-player aggregates strictly before an event.
package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fortuna/caddie/internal/golf"
	"github.com/fortuna/caddie/internal/store"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// ResultReader returns stored results whose ending date lies in [start, end], both
// inclusive, ordered by ending date descending then tournament. An empty course
// means every course.
type ResultReader interface {
	ListWindow(ctx context.Context, start, end golf.Date, course string) ([]store.TournamentResult, error)
}

// Config holds the window lengths.
type Config struct {
	CutWindowMonths   int
	FormWindowMonths  int
	CourseWindowYears int
}

// DefaultConfig returns the standard windows: six months of cuts and form, seven
// years of course history.
func DefaultConfig() Config {
	return Config{CutWindowMonths: 6, FormWindowMonths: 6, CourseWindowYears: 7}
}

// CutHistory summarizes made cuts and points for one player.
type CutHistory struct {
	EventsPlayed int     `json:"events_played"`
	CutsMade     int     `json:"cuts_made"`
	Points       float64 `json:"points"`
	CutPct       float64 `json:"cut_pct"`
	FormDensity  float64 `json:"form_density"`
	Streak       int     `json:"streak"`
}

// Finish summarizes finishing positions for one player. It is used for both
// recent form and course history.
type Finish struct {
	EventsPlayed int     `json:"events_played"`
	Mean         float64 `json:"mean"`
	Adjusted     float64 `json:"adjusted"`
}

// Window is an inclusive date range.
type Window struct {
	Start golf.Date
	End   golf.Date
}

// MonthsBefore is the window of n months ending the day before d.
func MonthsBefore(d golf.Date, n int) Window {
	return Window{Start: d.AddMonths(-n), End: d.AddDays(-1)}
}

// YearsBefore is the window of n years ending the day before d.
func YearsBefore(d golf.Date, n int) Window {
	return Window{Start: d.AddYears(-n), End: d.AddDays(-1)}
}

// Engine computes rolling features from stored results.
type Engine struct {
	reader  ResultReader
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEngine creates a feature engine. Zero window lengths fall back to the defaults.
func NewEngine(reader ResultReader, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.CutWindowMonths <= 0 {
		cfg.CutWindowMonths = def.CutWindowMonths
	}
	if cfg.FormWindowMonths <= 0 {
		cfg.FormWindowMonths = def.FormWindowMonths
	}
	if cfg.CourseWindowYears <= 0 {
		cfg.CourseWindowYears = def.CourseWindowYears
	}
	return &Engine{
		reader:  reader,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "features").Logger(),
	}
}

// CutHistory aggregates cuts, points and the current made-cut streak per player.
func (e *Engine) CutHistory(ctx context.Context, ev store.Event) (map[string]CutHistory, error) {
	w := MonthsBefore(ev.EndingDate, e.cfg.CutWindowMonths)
	rows, err := e.reader.ListWindow(ctx, w.Start, w.End, "")
	if err != nil {
		return nil, fmt.Errorf("cut history for %s %s: %w", ev.Tournament, ev.EndingDate, err)
	}
	return cutHistory(rows), nil
}

// RecentForm averages finishing positions per player over the form window.
func (e *Engine) RecentForm(ctx context.Context, ev store.Event) (map[string]Finish, error) {
	w := MonthsBefore(ev.EndingDate, e.cfg.FormWindowMonths)
	rows, err := e.reader.ListWindow(ctx, w.Start, w.End, "")
	if err != nil {
		return nil, fmt.Errorf("recent form for %s %s: %w", ev.Tournament, ev.EndingDate, err)
	}
	return finishes(rows), nil
}

// CourseHistory averages finishing positions per player at the event's course.
// An event with no course has no course history.
func (e *Engine) CourseHistory(ctx context.Context, ev store.Event) (map[string]Finish, error) {
	if ev.Course == "" {
		return map[string]Finish{}, nil
	}
	w := YearsBefore(ev.EndingDate, e.cfg.CourseWindowYears)
	rows, err := e.reader.ListWindow(ctx, w.Start, w.End, ev.Course)
	if err != nil {
		return nil, fmt.Errorf("course history for %s %s: %w", ev.Tournament, ev.EndingDate, err)
	}
	return finishes(rows), nil
}

// Build computes every feature family for each event.
func (e *Engine) Build(ctx context.Context, events []store.Event) (Snapshots, error) {
	started := time.Now()
	out := make(Snapshots, len(events))

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cut, err := e.CutHistory(ctx, ev)
		if err != nil {
			return nil, err
		}
		form, err := e.RecentForm(ctx, ev)
		if err != nil {
			return nil, err
		}
		course, err := e.CourseHistory(ctx, ev)
		if err != nil {
			return nil, err
		}
		out[ev.Key()] = Snapshot{Cut: cut, Form: form, Course: course}
	}

	e.metrics.ObserveFeatureBuild(time.Since(started))
	e.logger.Debug().Int("events", len(events)).Dur("elapsed", time.Since(started)).Msg("rolling features built")
	return out, nil
}

func cutHistory(rows []store.TournamentResult) map[string]CutHistory {
	out := make(map[string]CutHistory)
	streakOpen := make(map[string]bool)

	// rows arrive most recent first, which is the order the streak is counted in
	for _, r := range rows {
		h := out[r.Player]
		if h.EventsPlayed == 0 {
			streakOpen[r.Player] = true
		}
		made := golf.MadeCut(r.Pos)

		h.EventsPlayed++
		if made {
			h.CutsMade++
		}
		if r.FedexCupPoints.Valid {
			h.Points += golf.ParsePoints(r.FedexCupPoints.String)
		}
		if streakOpen[r.Player] {
			if made {
				h.Streak++
			} else {
				streakOpen[r.Player] = false
			}
		}
		out[r.Player] = h
	}

	for player, h := range out {
		h.CutPct = round(float64(h.CutsMade)/float64(h.EventsPlayed)*100, 1)
		h.FormDensity = round(h.Points/float64(h.EventsPlayed), 2)
		out[player] = h
	}
	return out
}

func finishes(rows []store.TournamentResult) map[string]Finish {
	positions := make(map[string][]float64)
	for _, r := range rows {
		positions[r.Player] = append(positions[r.Player], float64(r.FinalPos))
	}

	out := make(map[string]Finish, len(positions))
	for player, xs := range positions {
		mean := round(stat.Mean(xs, nil), 1)
		out[player] = Finish{
			EventsPlayed: len(xs),
			Mean:         mean,
			Adjusted:     Dampen(mean, len(xs)),
		}
	}
	return out
}

// Dampen divides a mean finish by ln(1+played), rounded to two decimals. More
// events give a smaller value for the same mean.
func Dampen(mean float64, played int) float64 {
	if played <= 0 {
		return 0
	}
	return round(mean/math.Log1p(float64(played)), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
