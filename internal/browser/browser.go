// Package browser exposes headless page rendering as a narrow capability so
// callers can be exercised against a stub instead of a real browser.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no browser could be started.
var ErrUnavailable = errors.New("browser: unavailable")

// WaitUntil selects the lifecycle event navigation waits for.
type WaitUntil string

const (
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// Request describes one page render.
type Request struct {
	URL               string
	WaitUntil         WaitUntil
	NavigationTimeout time.Duration

	// WaitSelectors are tried in order; the first one to appear ends the wait.
	WaitSelectors       []string
	WaitSelectorTimeout time.Duration
	Settle              time.Duration

	// TextSelectors are queried after settling; Page.Texts holds their text per selector.
	TextSelectors []string

	// ResponseMarker records every network response whose URL contains it.
	ResponseMarker string

	// CollectMedia gathers <video>/<source> URLs with their surrounding text.
	CollectMedia bool
}

// Media is a media element found in the rendered DOM.
type Media struct {
	Src     string `json:"src"`
	Context string `json:"context"`
}

// Page is the result of a render.
type Page struct {
	URL       string
	HTML      string
	Texts     map[string][]string
	Responses []string
	Media     []Media
}

// Renderer renders pages in a headless browser.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Page, error)
	Close() error
}
