package price

import (
	"context"
	"net/http"
	"sync"
)

// ResolveBatch fetches every URL statically, bounded by the static pool. Each
// worker walks its candidate pages once without retries; URLs that yield
// nothing map to an empty Prices.
func (r *Resolver) ResolveBatch(ctx context.Context, urls []string) map[string]Prices {
	results := make(map[string]Prices, len(urls))
	if len(urls) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, url := range urls {
		if err := r.staticSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer r.staticSem.Release(1)

			prices := r.fetchCandidates(ctx, url)
			mu.Lock()
			results[url] = prices
			mu.Unlock()
		}(url)
	}
	wg.Wait()
	return results
}

func (r *Resolver) fetchCandidates(ctx context.Context, url string) Prices {
	candidates := []string{url}
	if IsForcedBrowserHost(url) {
		candidates = HTTPCandidates(url)
	}

	for _, candidate := range candidates {
		body, status, err := r.fetcher.Get(ctx, candidate)
		if err != nil {
			r.logger.Debug().Err(err).Str("url", candidate).Msg("batch fetch failed")
			if ctx.Err() != nil {
				return Prices{}
			}
			continue
		}
		if status == http.StatusForbidden || retryableStatus(status) || Blocked(body) {
			continue
		}
		return Parse(body)
	}
	return Prices{}
}

// ResolveBrowserBatch renders browser-only URLs in chunks of BrowserMax on the
// browser pool. Every render runs under one BrowserTimeout deadline for the
// whole batch; URLs not started before it are skipped and partial results are
// returned.
func (r *Resolver) ResolveBrowserBatch(ctx context.Context, urls []string) map[string]Prices {
	results := make(map[string]Prices)
	if !r.opts.BrowserEnabled {
		return results
	}

	targets := make([]string, 0, len(urls))
	for _, url := range urls {
		if IsForcedBrowserHost(url) {
			targets = append(targets, url)
		}
	}
	if len(targets) == 0 {
		return results
	}

	chunkSize := r.opts.BrowserMax
	if chunkSize <= 0 {
		chunkSize = len(targets)
	}
	deadline := r.now().Add(r.opts.BrowserTimeout)
	ctx, cancel := context.WithTimeout(ctx, r.opts.BrowserTimeout)
	defer cancel()

	expired := func() bool {
		return ctx.Err() != nil || !r.now().Before(deadline)
	}

	var (
		mu      sync.Mutex
		skipped int
	)
	for start := 0; start < len(targets); start += chunkSize {
		if expired() {
			skipped += len(targets) - start
			break
		}

		end := start + chunkSize
		if end > len(targets) {
			end = len(targets)
		}
		chunk := targets[start:end]

		r.mu.Lock()
		r.browserBatch += len(chunk)
		r.mu.Unlock()

		var wg sync.WaitGroup
		for _, url := range chunk {
			wg.Add(1)
			go func(url string) {
				defer wg.Done()
				if expired() || r.browserSem.Acquire(ctx, 1) != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					return
				}
				defer r.browserSem.Release(1)
				if expired() {
					mu.Lock()
					skipped++
					mu.Unlock()
					return
				}

				prices := r.renderHeld(ctx, url, r.opts.BatchNavigationTimeout)
				mu.Lock()
				results[url] = prices
				mu.Unlock()
			}(url)
		}
		wg.Wait()
	}

	if skipped > 0 {
		r.logger.Warn().
			Dur("timeout", r.opts.BrowserTimeout).
			Int("skipped", skipped).
			Msg("browser batch deadline reached, keeping partial results")
	}
	return results
}
