// Package streams discovers HLS playlist URLs of live home-shopping channels.
package streams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"broadcast-board/internal/browser"
)

const (
	DefaultListingURL = "https://m.livehs.co.kr/schedule"
	playlistMarker    = ".m3u8"
)

type urlPattern struct {
	code     string
	patterns []string
}

// urlPatterns are checked in order; a URL belongs to the first code with a hit.
var urlPatterns = []urlPattern{
	{code: "cjon", patterns: []string{"cjonstyle", "cjmalllive"}},
	{code: "gsshop", patterns: []string{"gsshop.com", "gsshop_hd", "gstv-gsshop"}},
	{code: "shoppingnt", patterns: []string{"wshopping", "catenoid", "w-shopping"}},
}

// Item is one discovered playlist.
type Item struct {
	URL         string `json:"url"`
	ContextText string `json:"context_text"`
}

// Result is the outcome of one collection.
type Result struct {
	Matched  map[string]string `json:"matched"`
	Unmapped []string          `json:"unmapped"`
	Items    []Item            `json:"items"`
}

// Options configure a Locator.
type Options struct {
	ListingURL        string
	ReportPath        string
	NavigationTimeout time.Duration
	Settle            time.Duration
}

// Locator renders the listing page and maps playlists to channel codes.
type Locator struct {
	opts     Options
	renderer browser.Renderer
	logger   zerolog.Logger
}

// NewLocator builds a Locator around renderer.
func NewLocator(opts Options, renderer browser.Renderer, logger zerolog.Logger) *Locator {
	if opts.ListingURL == "" {
		opts.ListingURL = DefaultListingURL
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 3 * time.Second
	}
	return &Locator{
		opts:     opts,
		renderer: renderer,
		logger:   logger.With().Str("component", "stream_locator").Logger(),
	}
}

// Collect discovers playlists, matches them against nameToCode and writes
// the report when a report path is configured.
func (l *Locator) Collect(ctx context.Context, nameToCode map[string]string) (Result, error) {
	l.logger.Info().Str("url", l.opts.ListingURL).Msg("collecting live streams")

	items, err := l.discover(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		l.logger.Warn().Msg("no stream urls discovered; check page loading and selectors")
	}

	result := Match(items, nameToCode)
	l.logger.Info().
		Int("matched", len(result.Matched)).
		Int("unmapped", len(result.Unmapped)).
		Msg("stream matching finished")

	if l.opts.ReportPath != "" {
		if err := WriteReport(l.opts.ReportPath, result); err != nil {
			return result, err
		}
		l.logger.Info().Str("path", l.opts.ReportPath).Msg("stream report written")
	}
	return result, nil
}

func (l *Locator) discover(ctx context.Context) ([]Item, error) {
	page, err := l.renderer.Render(ctx, browser.Request{
		URL:               l.opts.ListingURL,
		WaitUntil:         browser.WaitNetworkIdle,
		NavigationTimeout: l.opts.NavigationTimeout,
		Settle:            l.opts.Settle,
		ResponseMarker:    playlistMarker,
		CollectMedia:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("render listing page: %w", err)
	}

	byURL := make(map[string]*Item)
	for _, url := range page.Responses {
		if _, ok := byURL[url]; !ok {
			byURL[url] = &Item{URL: url}
		}
	}
	for _, media := range page.Media {
		if !strings.Contains(media.Src, playlistMarker) {
			continue
		}
		if existing, ok := byURL[media.Src]; ok {
			if media.Context != "" {
				existing.ContextText = media.Context
			}
			continue
		}
		byURL[media.Src] = &Item{URL: media.Src, ContextText: media.Context}
	}

	items := make([]Item, 0, len(byURL))
	for _, item := range byURL {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].URL < items[j].URL })
	return items, nil
}

// Match assigns playlists to channel codes, first by URL pattern and then by
// a channel display name appearing in the surrounding text. The first URL
// matched to a code wins.
func Match(items []Item, nameToCode map[string]string) Result {
	result := Result{
		Matched:  make(map[string]string),
		Unmapped: make([]string, 0),
		Items:    items,
	}
	if result.Items == nil {
		result.Items = make([]Item, 0)
	}
	names := orderedNames(nameToCode)

	for _, item := range items {
		code, ok := matchPattern(item.URL)
		if !ok && item.ContextText != "" {
			code, ok = matchName(item.ContextText, names, nameToCode)
		}
		if !ok {
			result.Unmapped = append(result.Unmapped, item.URL)
			continue
		}
		if _, taken := result.Matched[code]; !taken {
			result.Matched[code] = item.URL
		}
	}
	return result
}

func matchPattern(url string) (string, bool) {
	lower := strings.ToLower(url)
	for _, p := range urlPatterns {
		for _, pattern := range p.patterns {
			if strings.Contains(lower, pattern) {
				return p.code, true
			}
		}
	}
	return "", false
}

func matchName(text string, names []string, nameToCode map[string]string) (string, bool) {
	for _, name := range names {
		if strings.Contains(text, name) {
			return nameToCode[name], true
		}
	}
	return "", false
}

// orderedNames puts longer names first so "CJ온스타일+" is tried before "CJ온스타일".
func orderedNames(nameToCode map[string]string) []string {
	names := make([]string, 0, len(nameToCode))
	for name := range nameToCode {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// WriteReport overwrites path with the indented JSON form of result.
func WriteReport(path string, result Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode stream report: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write stream report: %w", err)
	}
	return nil
}
