package golfodds

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/fortuna/caddie/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// UserAgent for requests
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinRequestInterval to stay polite with the archive host
	MinRequestInterval = 2 * time.Second
)

// ErrFetch is returned when a page cannot be retrieved.
var ErrFetch = errors.New("odds page fetch failed")

// ClientConfig configures the odds page client.
type ClientConfig struct {
	Timeout            time.Duration
	RequestInterval    time.Duration
	RenderJS           bool
	InsecureSkipVerify bool
}

// Client fetches odds pages, either with a plain GET or through a headless browser.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	renderJS   bool
	logger     zerolog.Logger

	// Chromedp allocator, only set when rendering
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewClient creates an odds page client.
func NewClient(cfg ClientConfig, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = MinRequestInterval
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}

	logger = logger.With().Str("component", "golfodds-client").Logger()

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		renderJS:   cfg.RenderJS,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "golfodds",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			m.BreakerStateChanged(name, to.String())
		},
	})

	if cfg.RenderJS {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(UserAgent),
		)
		c.allocCtx, c.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return c
}

// Close releases the browser allocator, if any.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Fetch returns the HTML of url. Archive pages are static; render is only
// honored when the client was built with RenderJS.
func (c *Client) Fetch(ctx context.Context, url string, render bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		if render && c.allocCtx != nil {
			return c.render(ctx, url)
		}
		return c.get(ctx, url)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}

	html := out.(string)
	c.logger.Debug().Str("url", url).Int("bytes", len(html)).Msg("fetched odds page")
	return html, nil
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

func (c *Client) render(ctx context.Context, url string) (string, error) {
	browserCtx, cancel := chromedp.NewContext(c.allocCtx)
	defer cancel()

	// Stop the browser when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	browserCtx, cancel = context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`table`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp error: %w", err)
	}
	if htmlContent == "" {
		return "", errors.New("empty HTML content returned")
	}
	return htmlContent, nil
}
