package training

import (
	"context"
	"time"

	"github.com/fortuna/caddie/internal/store"
	"github.com/rs/zerolog"
)

// Publisher announces finished training builds.
type Publisher interface {
	PublishTraining(ctx context.Context, summary interface{}) error
}

// Summary describes one pipeline run.
type Summary struct {
	Course     string    `json:"course"`
	Tournament string    `json:"tournament"`
	Seasons    []int     `json:"seasons"`
	Events     int       `json:"events"`
	Rows       int       `json:"rows"`
	Positives  int       `json:"positives"`
	BuiltAt    time.Time `json:"built_at"`
}

// Pipeline selects history for a course or tournament and builds its training matrix.
type Pipeline struct {
	selector  *HistorySelector
	builder   *Builder
	publisher Publisher
	logger    zerolog.Logger
}

// NewPipeline creates a pipeline. publisher may be nil.
func NewPipeline(selector *HistorySelector, builder *Builder, publisher Publisher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		selector:  selector,
		builder:   builder,
		publisher: publisher,
		logger:    logger.With().Str("component", "training-pipeline").Logger(),
	}
}

// Run builds the matrix and returns it with a summary.
func (p *Pipeline) Run(ctx context.Context, course, tournament string, seasons []int) ([]Row, *Summary, error) {
	events, err := p.selector.Select(ctx, course, tournament, seasons)
	if err != nil {
		return nil, nil, err
	}

	rows, err := p.builder.Build(ctx, events)
	if err != nil {
		return nil, nil, err
	}

	summary := summarize(course, tournament, seasons, events, rows)
	if p.publisher != nil {
		if err := p.publisher.PublishTraining(ctx, summary); err != nil {
			p.logger.Warn().Err(err).Msg("failed to publish training summary")
		}
	}

	p.logger.Info().
		Str("course", course).
		Str("tournament", tournament).
		Int("events", summary.Events).
		Int("rows", summary.Rows).
		Int("positives", summary.Positives).
		Msg("training matrix ready")
	return rows, summary, nil
}

func summarize(course, tournament string, seasons []int, events []store.Event, rows []Row) *Summary {
	s := &Summary{
		Course:     course,
		Tournament: tournament,
		Seasons:    seasons,
		Events:     len(events),
		Rows:       len(rows),
		BuiltAt:    time.Now().UTC(),
	}
	for _, r := range rows {
		if r.Top20 {
			s.Positives++
		}
	}
	return s
}
