package price

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrTransient marks a product page that kept failing with 429/5xx or transport errors.
	ErrTransient = errors.New("price: transient fetch failure")
	// ErrStatus marks a product page answered with an unexpected status.
	ErrStatus = errors.New("price: unexpected status")
)

const (
	defaultUserAgent = "BroadcastBoardBatch/1.0 (+https://local)"
	defaultReferer   = "https://mobile.gmarket.co.kr/"
)

// FetcherOptions configure static product page fetching.
type FetcherOptions struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Backoff   time.Duration
	// RatePerSecond caps outgoing requests across all workers; zero disables the cap.
	RatePerSecond float64
}

// PageFetcher retrieves product pages.
type PageFetcher interface {
	// Fetch paces, retries once on transient failures and reports 403 as an empty body.
	Fetch(ctx context.Context, url string) (string, error)
	// Get performs one request and returns the raw status.
	Get(ctx context.Context, url string) (string, int, error)
}

// Fetcher is the resty backed PageFetcher.
type Fetcher struct {
	opts    FetcherOptions
	http    *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewFetcher constructs a product page fetcher.
func NewFetcher(opts FetcherOptions, logger zerolog.Logger) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = defaultReferer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 6 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeaders(map[string]string{
			"User-Agent":      opts.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "ko-KR,ko;q=0.9,en;q=0.8",
			"Referer":         opts.Referer,
		})

	f := &Fetcher{
		opts:   opts,
		http:   client,
		logger: logger.With().Str("component", "price_fetcher").Logger(),
	}
	if opts.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return f
}

// Fetch downloads url. A 403 is a block signal and yields an empty body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := sleepCtx(ctx, jitter(f.opts.MinDelay, f.opts.MaxDelay)); err != nil {
		return "", err
	}

	backoff := f.opts.Backoff
	for attempt := 0; ; attempt++ {
		body, status, err := f.Get(ctx, url)
		if err == nil {
			switch {
			case status == http.StatusForbidden:
				return "", nil
			case status >= 200 && status < 300:
				return body, nil
			case !retryableStatus(status):
				return "", fmt.Errorf("%w: %s returned %d", ErrStatus, url, status)
			}
			err = fmt.Errorf("status %d", status)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt >= 1 {
			return "", fmt.Errorf("%w: %s: %v", ErrTransient, url, err)
		}

		f.logger.Debug().Err(err).Str("url", url).Dur("backoff", backoff).Msg("retrying product page")
		if err := sleepCtx(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
	}
}

// Get performs a single GET without pacing or retries.
func (f *Fetcher) Get(ctx context.Context, url string) (string, int, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", 0, err
		}
	}
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", 0, err
	}
	return resp.String(), resp.StatusCode(), nil
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
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
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ PageFetcher = (*Fetcher)(nil)
