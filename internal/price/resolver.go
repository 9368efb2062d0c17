package price

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"broadcast-board/internal/browser"
)

// Options configure a Resolver.
type Options struct {
	Enabled            bool
	MaxFetch           int
	Concurrency        int
	BrowserEnabled     bool
	BrowserMax         int
	BrowserConcurrency int
	// BrowserTimeout bounds the whole browser batch.
	BrowserTimeout time.Duration
	// NavigationTimeout bounds one item-level render; BatchNavigationTimeout one batch render.
	NavigationTimeout      time.Duration
	BatchNavigationTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Enabled:                true,
		MaxFetch:               200,
		Concurrency:            8,
		BrowserEnabled:         true,
		BrowserMax:             30,
		BrowserConcurrency:     3,
		BrowserTimeout:         60 * time.Second,
		NavigationTimeout:      8 * time.Second,
		BatchNavigationTimeout: 6 * time.Second,
	}
}

// Stats summarises one resolver's work.
type Stats struct {
	Requested             int
	Success               int
	CacheSize             int
	BrowserRequested      int
	BrowserSkipped        int
	BrowserBatchRequested int
}

// Resolver resolves product prices for a single pipeline run. Its cache and
// budgets belong to the instance; build a new one per run.
type Resolver struct {
	opts     Options
	fetcher  PageFetcher
	renderer browser.Renderer
	logger   zerolog.Logger
	now      func() time.Time

	staticSem  *semaphore.Weighted
	browserSem *semaphore.Weighted

	mu                 sync.Mutex
	cache              map[string]Prices
	requested          int
	success            int
	browserRequested   int
	browserSkipped     int
	browserBatch       int
	browserLimitLogged bool

	steps []step
}

// NewResolver builds a resolver. A nil renderer disables browser fallback.
func NewResolver(opts Options, fetcher PageFetcher, renderer browser.Renderer, logger zerolog.Logger) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BrowserConcurrency <= 0 {
		opts.BrowserConcurrency = 1
	}
	if renderer == nil {
		opts.BrowserEnabled = false
	}

	r := &Resolver{
		opts:       opts,
		fetcher:    fetcher,
		renderer:   renderer,
		logger:     logger.With().Str("component", "price_resolver").Logger(),
		now:        time.Now,
		staticSem:  semaphore.NewWeighted(int64(opts.Concurrency)),
		browserSem: semaphore.NewWeighted(int64(opts.BrowserConcurrency)),
		cache:      make(map[string]Prices),
	}
	r.steps = []step{
		r.fromCache,
		r.checkBudget,
		r.forcedBrowser,
		r.staticFetch,
		r.browserFallback,
		r.remember,
	}
	return r
}

// WithClock replaces the clock used for the browser batch deadline.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// attempt carries one URL through the resolution steps.
type attempt struct {
	url      string
	prices   Prices
	answered bool
}

// step advances an attempt and reports whether resolution is finished.
type step func(ctx context.Context, a *attempt) bool

// Resolve returns the prices of one product page. ok is false when the
// resolver declined to look the URL up (disabled, empty URL or budget spent).
func (r *Resolver) Resolve(ctx context.Context, url string) (prices Prices, ok bool) {
	if !r.opts.Enabled || url == "" {
		return Prices{}, false
	}

	a := &attempt{url: url}
	for _, s := range r.steps {
		if s(ctx, a) {
			break
		}
	}
	return a.prices, a.answered
}

func (r *Resolver) fromCache(_ context.Context, a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[a.url]; ok {
		a.prices, a.answered = cached, true
		return true
	}
	return false
}

func (r *Resolver) checkBudget(_ context.Context, a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requested >= r.opts.MaxFetch {
		return true
	}
	r.requested++
	return false
}

// forcedBrowser renders browser-only hosts and never falls back to static fetching.
func (r *Resolver) forcedBrowser(ctx context.Context, a *attempt) bool {
	if !IsForcedBrowserHost(a.url) {
		return false
	}
	if !r.opts.BrowserEnabled {
		r.logger.Warn().Str("url", a.url).Msg("browser disabled, skipping browser-only product")
		r.store(a, Prices{})
		return true
	}
	if !r.takeBrowserBudget() {
		r.mu.Lock()
		r.browserSkipped++
		r.mu.Unlock()
		r.logBrowserLimit()
		r.store(a, Prices{})
		return true
	}

	prices := r.renderCandidates(ctx, a.url, r.opts.NavigationTimeout)
	if !prices.Found() {
		r.logger.Warn().Str("url", a.url).Msg("browser render found no price, skipping product")
	}
	r.store(a, prices)
	return true
}

func (r *Resolver) staticFetch(ctx context.Context, a *attempt) bool {
	if err := r.staticSem.Acquire(ctx, 1); err != nil {
		return false
	}
	html, err := r.fetcher.Fetch(ctx, a.url)
	r.staticSem.Release(1)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", a.url).Msg("product page fetch failed")
		return false
	}

	if Blocked(html) {
		r.logger.Warn().Str("url", a.url).Msg("product page blocked or empty")
		html = ""
	}
	a.prices = Parse(html)
	return false
}

func (r *Resolver) browserFallback(ctx context.Context, a *attempt) bool {
	if a.prices.Found() || !r.takeBrowserBudget() {
		return false
	}
	if prices := r.renderCandidates(ctx, a.url, r.opts.NavigationTimeout); prices.Found() {
		a.prices = prices
	}
	return false
}

func (r *Resolver) remember(_ context.Context, a *attempt) bool {
	r.store(a, a.prices)
	return true
}

func (r *Resolver) store(a *attempt, prices Prices) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[a.url] = prices
	if prices.Found() {
		r.success++
	}
	a.prices, a.answered = prices, true
}

// takeBrowserBudget spends one browser render; BrowserMax <= 0 is unlimited.
func (r *Resolver) takeBrowserBudget() bool {
	if !r.opts.BrowserEnabled {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.BrowserMax > 0 && r.browserRequested >= r.opts.BrowserMax {
		return false
	}
	r.browserRequested++
	return true
}

func (r *Resolver) logBrowserLimit() {
	if r.opts.BrowserMax <= 0 {
		return
	}
	r.mu.Lock()
	logged := r.browserLimitLogged
	r.browserLimitLogged = true
	r.mu.Unlock()
	if !logged {
		r.logger.Warn().Int("browser_max", r.opts.BrowserMax).Msg("browser render budget exhausted, skipping remaining products")
	}
}

// renderCandidates walks the browser candidates of url and returns the first
// page that yields a price, preferring the rendered price hooks over the HTML.
func (r *Resolver) renderCandidates(ctx context.Context, url string, navigationTimeout time.Duration) Prices {
	if err := r.browserSem.Acquire(ctx, 1); err != nil {
		return Prices{}
	}
	defer r.browserSem.Release(1)
	return r.renderHeld(ctx, url, navigationTimeout)
}

// renderHeld is renderCandidates for a caller already holding the browser pool.
func (r *Resolver) renderHeld(ctx context.Context, url string, navigationTimeout time.Duration) Prices {
	for _, candidate := range BrowserCandidates(url) {
		if ctx.Err() != nil {
			return Prices{}
		}
		page, err := r.renderer.Render(ctx, renderRequest(candidate, navigationTimeout))
		if err != nil {
			r.logger.Warn().Err(err).Str("url", candidate).Msg("browser navigation failed")
			continue
		}
		if prices := ExtractRendered(page); prices.Found() {
			return prices
		}
		if !Blocked(page.HTML) {
			if prices := Parse(page.HTML); prices.Found() {
				return prices
			}
		}
	}
	return Prices{}
}

// Stats returns a snapshot of the resolver counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Requested:             r.requested,
		Success:               r.success,
		CacheSize:             len(r.cache),
		BrowserRequested:      r.browserRequested,
		BrowserSkipped:        r.browserSkipped,
		BrowserBatchRequested: r.browserBatch,
	}
}
