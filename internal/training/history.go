package training

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/fortuna/caddie/internal/store"
)

// EventFinder lists events played at a course or under a tournament name.
type EventFinder interface {
	FindEvents(ctx context.Context, course, tournament string) ([]store.Event, error)
}

// HistorySelector picks the historical events a training matrix is built from.
type HistorySelector struct {
	finder EventFinder
}

// NewHistorySelector creates a selector.
func NewHistorySelector(finder EventFinder) *HistorySelector {
	return &HistorySelector{finder: finder}
}

// Select returns the events held at course or named tournament, restricted to the
// given seasons (all seasons when empty). Events repeating a (season, tournament,
// course) triple are dropped, keeping the earliest. Output is sorted by season.
func (s *HistorySelector) Select(ctx context.Context, course, tournament string, seasons []int) ([]store.Event, error) {
	found, err := s.finder.FindEvents(ctx, course, tournament)
	if err != nil {
		return nil, fmt.Errorf("finding history for %q/%q: %w", course, tournament, err)
	}

	type triple struct {
		season     int
		tournament string
		course     string
	}
	seen := make(map[triple]struct{}, len(found))
	var out []store.Event
	for _, ev := range found {
		if len(seasons) > 0 && !slices.Contains(seasons, ev.Season) {
			continue
		}
		k := triple{ev.Season, ev.Tournament, ev.Course}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Season < out[j].Season })
	return out, nil
}
