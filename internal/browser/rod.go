package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

const collectMediaJS = `() => Array.from(document.querySelectorAll('video')).map(el => {
  const source = el.querySelector('source');
  const src = (source && source.getAttribute('src')) || el.getAttribute('src') || '';
  const box = el.closest('li, article, section, div');
  return { src: src, context: box ? box.innerText : '' };
}).filter(item => item.src)`

// RodOptions configure the go-rod renderer.
type RodOptions struct {
	BinPath          string
	Headful          bool
	UserAgent        string
	AcceptLanguage   string
	TimezoneID       string
	ViewportWidth    int
	ViewportHeight   int
	StorageStatePath string
}

// RodRenderer renders pages with a stealth-patched Chromium driven by go-rod.
type RodRenderer struct {
	opts     RodOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
	logger   zerolog.Logger
}

// NewRod launches Chromium and connects to it.
func NewRod(opts RodOptions, logger zerolog.Logger) (*RodRenderer, error) {
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = "ko-KR"
	}
	if opts.TimezoneID == "" {
		opts.TimezoneID = "Asia/Seoul"
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = 1280, 720
	}

	logger = logger.With().Str("component", "browser").Logger()

	bin := opts.BinPath
	if bin == "" {
		if path, found := launcher.LookPath(); found {
			bin = path
		} else {
			logger.Info().Msg("no browser binary found, downloading default")
			path, err := launcher.NewBrowser().Get()
			if err != nil {
				return nil, fmt.Errorf("download browser: %w", err)
			}
			bin = path
		}
	}

	l := launcher.New().
		Headless(!opts.Headful).
		Bin(bin).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", opts.AcceptLanguage)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	r := &RodRenderer{opts: opts, launcher: l, browser: b, logger: logger}
	if err := r.loadStorageState(); err != nil {
		logger.Warn().Err(err).Str("path", opts.StorageStatePath).Msg("ignoring browser session state")
	}

	logger.Info().Str("bin", bin).Bool("headful", opts.Headful).Msg("browser started")
	return r, nil
}

func (r *RodRenderer) loadStorageState() error {
	cookies, err := LoadStorageState(r.opts.StorageStatePath)
	if err != nil || len(cookies) == 0 {
		return err
	}
	if err := r.browser.SetCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	r.logger.Info().Int("cookies", len(cookies)).Msg("browser session state loaded")
	return nil
}

// Render opens a fresh stealth page, navigates and collects what req asks for.
func (r *RodRenderer) Render(ctx context.Context, req Request) (*Page, error) {
	page, err := stealth.Page(r.browser)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	page = page.Context(pageCtx)

	if err := r.prepare(page); err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		responses []string
		seen      = make(map[string]struct{})
	)
	if req.ResponseMarker != "" {
		wait := page.EachEvent(func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || !strings.Contains(e.Response.URL, req.ResponseMarker) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if _, ok := seen[e.Response.URL]; !ok {
				seen[e.Response.URL] = struct{}{}
				responses = append(responses, e.Response.URL)
			}
		})
		go wait()
	}

	if err := navigate(page, req); err != nil {
		return nil, err
	}

	waitForAny(page, req.WaitSelectors, req.WaitSelectorTimeout)

	if req.Settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(req.Settle):
		}
	}

	out := &Page{URL: req.URL, Texts: make(map[string][]string, len(req.TextSelectors))}
	for _, sel := range req.TextSelectors {
		out.Texts[sel] = elementTexts(page, sel)
	}

	if req.CollectMedia {
		media, err := collectMedia(page)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", req.URL).Msg("collect media failed")
		}
		out.Media = media
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	out.HTML = html

	mu.Lock()
	out.Responses = append([]string(nil), responses...)
	mu.Unlock()

	return out, nil
}

func (r *RodRenderer) prepare(page *rod.Page) error {
	if r.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      r.opts.UserAgent,
			AcceptLanguage: r.opts.AcceptLanguage,
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  r.opts.ViewportWidth,
		Height: r.opts.ViewportHeight,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: r.opts.TimezoneID}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	return nil
}

func navigate(page *rod.Page, req Request) error {
	event := proto.PageLifecycleEventNameDOMContentLoaded
	if req.WaitUntil == WaitNetworkIdle {
		event = proto.PageLifecycleEventNameNetworkIdle
	}

	timeout := req.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navPage, cancel := page.WithCancel()
	defer cancel()
	navPage = navPage.Timeout(timeout)
	defer navPage.CancelTimeout()

	wait := navPage.WaitNavigation(event)
	if err := navPage.Navigate(req.URL); err != nil {
		return fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	wait()
	return nil
}

func waitForAny(page *rod.Page, selectors []string, timeout time.Duration) {
	if len(selectors) == 0 {
		return
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	for _, sel := range selectors {
		scoped := page.Timeout(timeout)
		_, err := scoped.Element(sel)
		scoped.CancelTimeout()
		if err == nil {
			return
		}
	}
}

func elementTexts(page *rod.Page, selector string) []string {
	elements, err := page.Elements(selector)
	if err != nil {
		return nil
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts
}

func collectMedia(page *rod.Page) ([]Media, error) {
	res, err := page.Eval(collectMediaJS)
	if err != nil {
		return nil, fmt.Errorf("eval media script: %w", err)
	}
	var media []Media
	if err := res.Value.Unmarshal(&media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	return media, nil
}

// Close shuts the browser down and removes its profile directory.
func (r *RodRenderer) Close() error {
	err := r.browser.Close()
	r.launcher.Cleanup()
	return err
}

var _ Renderer = (*RodRenderer)(nil)
