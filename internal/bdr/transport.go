package bdr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bdrtools/internal/logging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultStreamTimeout  = 60 * time.Second
	defaultMaxTries       = 4
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 15 * time.Second
	defaultRequestPause   = 200 * time.Millisecond
	defaultUserAgent      = "bdrtools/1.0 (+https://repository.library.brown.edu/)"
)

// Config captures the runtime settings required to talk to the repository.
type Config struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	MaxTries       int
	RetryMaxDelay  time.Duration
	RequestPause   time.Duration
}

// Client issues polite, retrying GET requests against the repository API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	retryBaseDelay time.Duration
	sleeper        func(time.Duration)
	logger         *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if baseDelay > 0 {
			c.retryBaseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.cfg.RetryMaxDelay = maxDelay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "bdr")
		}
	}
}

// New constructs a repository client using the supplied configuration.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaultStreamTimeout
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}

	client := &Client{
		cfg:            cfg,
		httpClient:     &http.Client{},
		retryBaseDelay: defaultRetryBaseDelay,
		logger:         logging.NewNop(),
	}
	if cfg.RequestPause > 0 {
		client.limiter = rate.NewLimiter(rate.Every(cfg.RequestPause), 1)
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// BaseURL returns the normalized repository root.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// get fetches rawURL with the politeness pause and retry budget applied.
// timeout bounds each individual attempt, not the whole call.
func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	tries := c.cfg.MaxTries
	var lastErr error

	for attempt := 1; attempt <= tries; attempt++ {
		if err := c.pause(ctx); err != nil {
			return nil, err
		}

		body, err := c.getOnce(ctx, rawURL, timeout)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !c.shouldRetry(ctx, err) {
			return nil, err
		}
		if attempt == tries {
			break
		}

		delay := c.backoffDelay(attempt)
		c.logger.Warn("request failed, backing off",
			logging.String("url", rawURL),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("bdr request: %s: failed after %d attempts: %w", rawURL, tries, lastErr)
}

func (c *Client) getOnce(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bdr request: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bdr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bdr request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return body, nil
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	return ctx.Err() == nil && IsRetryable(err)
}

// backoffDelay returns the sleep before the attempt after this one:
// attempt 1 -> 2*base, attempt 2 -> 4*base, attempt 3 -> 8*base, capped.
func (c *Client) backoffDelay(attempt int) time.Duration {
	maxDelay := c.cfg.RetryMaxDelay
	delay := c.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 0; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// pause enforces the inter-request spacing, retries included.
func (c *Client) pause(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
