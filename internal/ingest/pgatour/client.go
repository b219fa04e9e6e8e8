package pgatour

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://orchestrator.pgatour.com/graphql"

var (
	// ErrMalformedResponse is returned when the GraphQL envelope cannot be decoded.
	ErrMalformedResponse = errors.New("malformed graphql response")
	// ErrUpstream is returned for non-2xx statuses and GraphQL errors.
	ErrUpstream = errors.New("upstream request failed")
)

// ClientConfig configures the GraphQL client.
type ClientConfig struct {
	Endpoint           string
	APIKey             string
	Timeout            time.Duration
	RequestInterval    time.Duration
	InsecureSkipVerify bool
}

// Client talks to the PGA TOUR GraphQL orchestrator. Calls are throttled and
// wrapped in a circuit breaker that opens after consecutive failures.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// NewClient creates a GraphQL client.
func NewClient(cfg ClientConfig, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}

	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	logger = logger.With().Str("component", "pgatour-client").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pgatour",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			m.BreakerStateChanged(name, to.String())
		},
	})

	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    breaker,
		logger:     logger,
	}
}

// PastResults fetches the final leaderboard of one tournament instance.
func (c *Client) PastResults(ctx context.Context, tournamentID string, year int) ([]PastResultPlayer, error) {
	req := graphQLRequest{
		OperationName: "TournamentPastResults",
		Variables: map[string]interface{}{
			"tournamentPastResultsId": tournamentID,
			"year":                    year,
		},
		Query: pastResultsQuery,
	}

	var resp pastResultsResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("past results %s/%d: %w", tournamentID, year, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("past results %s/%d: %w: %s", tournamentID, year, ErrUpstream, resp.Errors[0].Message)
	}
	if resp.Data.TournamentPastResults == nil {
		return nil, nil
	}
	return resp.Data.TournamentPastResults.Players, nil
}

// StatDetails fetches one statistic category for a season.
func (c *Client) StatDetails(ctx context.Context, statID string, year int) ([]StatRow, error) {
	req := graphQLRequest{
		OperationName: "StatDetails",
		Variables: map[string]interface{}{
			"tourCode":   TourCode,
			"statId":     statID,
			"year":       year,
			"eventQuery": nil,
		},
		Query: statDetailsQuery,
	}

	var resp statDetailsResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("stat %s/%d: %w", statID, year, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("stat %s/%d: %w: %s", statID, year, ErrUpstream, resp.Errors[0].Message)
	}
	if resp.Data.StatDetails == nil {
		return nil, nil
	}
	return resp.Data.StatDetails.Rows, nil
}

func (c *Client) post(ctx context.Context, req graphQLRequest, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	c.logger.Debug().Str("operation", req.OperationName).Int("bytes", len(raw.([]byte))).Msg("graphql response")

	if err := json.Unmarshal(raw.([]byte), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
