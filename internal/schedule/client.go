package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrFetch marks a schedule page that could not be retrieved.
var ErrFetch = errors.New("schedule: fetch failed")

const (
	defaultSourceURL = "https://mobile.gmarket.co.kr/HomeShopping/BroadcastSchedule"
	defaultBaseURL   = "https://mobile.gmarket.co.kr"
	defaultUserAgent = "BroadcastBoardBatch/1.0 (+https://local)"
)

// Options parameterise the schedule source client.
type Options struct {
	SourceURL      string
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
}

// Fetcher retrieves raw schedule markup.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Client downloads schedule pages with jittered pacing and bounded retries.
type Client struct {
	opts   Options
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient constructs a schedule client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.SourceURL == "" {
		opts.SourceURL = defaultSourceURL
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	return &Client{
		opts:   opts,
		http:   client,
		logger: logger.With().Str("component", "schedule_client").Logger(),
	}
}

// Fetch returns the page body for url, or the configured source page when url is empty.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	target := url
	if target == "" {
		target = c.opts.SourceURL
	}

	if err := sleepCtx(ctx, jitter(c.opts.MinDelay, c.opts.MaxDelay)); err != nil {
		return "", err
	}

	backoff := c.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		body, err := c.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return "", err
		}
		if attempt >= c.opts.MaxRetries {
			return "", fmt.Errorf("%w: %s after %d retries: %v", ErrFetch, target, attempt, retryable.cause)
		}

		c.logger.Warn().Err(retryable.cause).
			Str("url", target).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("schedule fetch failed, retrying")

		if err := sleepCtx(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
	}
}

func (c *Client) fetchOnce(ctx context.Context, target string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &retryableError{cause: err}
	}

	status := resp.StatusCode()
	switch {
	case isRetryableStatus(status):
		return "", &retryableError{cause: fmt.Errorf("temporary status %d", status)}
	case status < 200 || status >= 300:
		return "", fmt.Errorf("%w: %s returned status %d", ErrFetch, target, status)
	}
	return resp.String(), nil
}

// ResolveURL turns a relative schedule link into an absolute URL.
func (c *Client) ResolveURL(href string) string {
	return resolveLink(c.opts.BaseURL, href)
}

type retryableError struct {
	cause error
}

func (e *retryableError) Error() string {
	return e.cause.Error()
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func resolveLink(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return base + href
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Fetcher = (*Client)(nil)
