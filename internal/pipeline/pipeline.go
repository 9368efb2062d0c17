// Package pipeline ingests the home-shopping broadcast schedule into storage.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"broadcast-board/internal/price"
	"broadcast-board/internal/schedule"
	"broadcast-board/internal/storage"
)

// SourceCode tags slots ingested from the schedule site.
const SourceCode = "gmarket_schedule"

// fallbackChannelName labels top-page items that name no channel.
const fallbackChannelName = "G마켓"

// Source fetches schedule pages.
type Source interface {
	Fetch(ctx context.Context, url string) (string, error)
	ResolveURL(href string) string
}

// Parser turns schedule markup into items.
type Parser interface {
	Parse(html string) ([]schedule.Item, error)
}

// PriceResolver is the per-run price lookup used by the pipeline.
type PriceResolver interface {
	Resolve(ctx context.Context, url string) (price.Prices, bool)
	ResolveBatch(ctx context.Context, urls []string) map[string]price.Prices
	ResolveBrowserBatch(ctx context.Context, urls []string) map[string]price.Prices
	Stats() price.Stats
}

// Store is the persistence needed by a run.
type Store interface {
	EnsureChannel(ctx context.Context, ch storage.ChannelUpsert) (storage.Channel, error)
	InTx(ctx context.Context, fn func(storage.SlotWriter) error) error
}

// Options tune a Pipeline.
type Options struct {
	SourceCode        string
	VendorConcurrency int
	PriceEnabled      bool
	BrowserEnabled    bool
	// LockKey enables a PostgreSQL advisory lock around each run when non-zero.
	LockKey int64
}

// RunStats summarises one run.
type RunStats struct {
	RunID    string
	Items    int
	Channels int
	Created  int
	Updated  int
	Price    price.Stats
	Skipped  bool
	Duration time.Duration
}

// Pipeline wires the schedule source, parser, resolver and store together.
type Pipeline struct {
	opts   Options
	source Source
	parser Parser
	store  Store
	locker storage.AdvisoryLocker
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Pipeline. The store doubles as advisory locker when it
// implements storage.AdvisoryLocker.
func New(opts Options, source Source, parser Parser, store Store, logger zerolog.Logger) *Pipeline {
	if opts.SourceCode == "" {
		opts.SourceCode = SourceCode
	}
	if opts.VendorConcurrency <= 0 {
		opts.VendorConcurrency = 1
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Pipeline{
		opts:   opts,
		source: source,
		parser: parser,
		store:  store,
		locker: locker,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the clock used for status and history timestamps.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

type channelGroup struct {
	code    string
	name    string
	logoURL string
	items   []schedule.Item
}

// Run performs one ingestion pass.
func (p *Pipeline) Run(ctx context.Context, resolver PriceResolver) (RunStats, error) {
	started := time.Now()
	stats := RunStats{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", stats.RunID).Logger()

	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		return stats, err
	}
	if !proceed {
		logger.Info().Msg("skip run because advisory lock held elsewhere")
		stats.Skipped = true
		return stats, nil
	}
	if unlock != nil {
		defer unlock()
	}

	groups, err := p.collect(ctx, logger)
	if err != nil {
		return stats, err
	}
	if len(groups) == 0 {
		logger.Warn().Msg("schedule parse returned no items; check the page structure")
		return stats, nil
	}

	priceMap := p.prefetchPrices(ctx, resolver, groups, logger)

	for _, g := range groups {
		stats.Items += len(g.items)
		channel, err := p.store.EnsureChannel(ctx, storage.ChannelUpsert{
			Code:      g.code,
			Name:      g.name,
			LogoURL:   g.logoURL,
			LiveURL:   LiveURL(g.code),
			StreamURL: KnownStreamURL(g.code),
		})
		if err != nil {
			return stats, fmt.Errorf("ensure channel %s: %w", g.code, err)
		}
		stats.Channels++

		created, updated, err := p.UpsertSlots(ctx, channel, g.items, priceMap, p.itemResolver(resolver))
		if err != nil {
			return stats, err
		}
		stats.Created += created
		stats.Updated += updated
	}

	stats.Duration = time.Since(started)
	if resolver != nil {
		stats.Price = resolver.Stats()
		logger.Info().
			Int("requested", stats.Price.Requested).
			Int("success", stats.Price.Success).
			Int("cache", stats.Price.CacheSize).
			Int("browser", stats.Price.BrowserRequested).
			Int("skipped", stats.Price.BrowserSkipped).
			Int("browser_batch", stats.Price.BrowserBatchRequested).
			Msg("product price stats")
	}
	logger.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("items", stats.Items).
		Int("channels", stats.Channels).
		Dur("duration", stats.Duration).
		Msg("schedule ingestion finished")
	return stats, nil
}

func (p *Pipeline) itemResolver(resolver PriceResolver) PriceResolver {
	if !p.opts.PriceEnabled {
		return nil
	}
	return resolver
}

// collect fetches the top page and, when it lists vendors, each vendor page.
func (p *Pipeline) collect(ctx context.Context, logger zerolog.Logger) ([]*channelGroup, error) {
	top, err := p.source.Fetch(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch schedule page: %w", err)
	}

	vendors, err := schedule.ExtractVendors(top)
	if err != nil {
		return nil, fmt.Errorf("extract vendors: %w", err)
	}
	if len(vendors) == 0 {
		items, err := p.parser.Parse(top)
		if err != nil {
			return nil, fmt.Errorf("parse schedule page: %w", err)
		}
		return groupTopPage(items), nil
	}

	pages, err := p.fetchVendorPages(ctx, vendors, logger)
	if err != nil {
		return nil, err
	}

	var grouped groups
	for i, vendor := range vendors {
		if pages[i] == "" {
			continue
		}
		items, err := p.parser.Parse(pages[i])
		if err != nil {
			logger.Warn().Err(err).Str("vendor", vendor.CompanyID).Msg("vendor page parse failed")
			continue
		}
		if len(items) == 0 {
			continue
		}

		name := vendor.DisplayName()
		g := grouped.get(ChannelCode(name))
		g.name = name
		g.logoURL = vendor.LogoURL
		for _, item := range items {
			item.ChannelName = name
			g.items = append(g.items, item)
		}
	}
	return grouped.list, nil
}

// fetchVendorPages downloads vendor pages concurrently; a failed page is
// logged and left empty.
func (p *Pipeline) fetchVendorPages(ctx context.Context, vendors []schedule.Vendor, logger zerolog.Logger) ([]string, error) {
	pages := make([]string, len(vendors))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.VendorConcurrency)

	for i, vendor := range vendors {
		eg.Go(func() error {
			url := p.source.ResolveURL(vendor.Href)
			html, err := p.source.Fetch(egCtx, url)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				logger.Warn().Err(err).Str("vendor", vendor.CompanyID).Str("url", url).Msg("vendor page fetch failed")
				return nil
			}
			pages[i] = html
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("fetch vendor pages: %w", err)
	}
	return pages, nil
}

func groupTopPage(items []schedule.Item) []*channelGroup {
	var grouped groups
	for _, item := range items {
		name := item.ChannelName
		if name == "" {
			name = fallbackChannelName
		}
		g := grouped.get(ChannelCode(name))
		g.name = name
		g.items = append(g.items, item)
	}
	return grouped.list
}

// groups keeps channel groups in first-seen order.
type groups struct {
	index map[string]*channelGroup
	list  []*channelGroup
}

func (gs *groups) get(code string) *channelGroup {
	if gs.index == nil {
		gs.index = make(map[string]*channelGroup)
	}
	if g, ok := gs.index[code]; ok {
		return g
	}
	g := &channelGroup{code: code}
	gs.index[code] = g
	gs.list = append(gs.list, g)
	return g
}

// prefetchPrices resolves every distinct product URL statically, then sends
// the URLs that produced nothing to the browser batch.
func (p *Pipeline) prefetchPrices(ctx context.Context, resolver PriceResolver, grouped []*channelGroup, logger zerolog.Logger) map[string]price.Prices {
	priceMap := make(map[string]price.Prices)
	if !p.opts.PriceEnabled || resolver == nil {
		return priceMap
	}

	urls := productURLs(grouped)
	if len(urls) == 0 {
		return priceMap
	}
	for url, prices := range resolver.ResolveBatch(ctx, urls) {
		priceMap[url] = prices
	}

	var missing []string
	for _, url := range urls {
		if prices, ok := priceMap[url]; !ok || !prices.Found() {
			missing = append(missing, url)
		}
	}
	logger.Debug().Int("urls", len(urls)).Int("missing", len(missing)).Msg("static price batch done")

	if len(missing) > 0 && p.opts.BrowserEnabled {
		for url, prices := range resolver.ResolveBrowserBatch(ctx, missing) {
			priceMap[url] = prices
		}
	}
	return priceMap
}

func productURLs(grouped []*channelGroup) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, g := range grouped {
		for _, item := range g.items {
			if item.ProductURL == "" {
				continue
			}
			if _, ok := seen[item.ProductURL]; ok {
				continue
			}
			seen[item.ProductURL] = struct{}{}
			urls = append(urls, item.ProductURL)
		}
	}
	return urls
}

func (p *Pipeline) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.opts.LockKey == 0 || p.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.locker.TryAdvisoryLock(ctx, p.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
