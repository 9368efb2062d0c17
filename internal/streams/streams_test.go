package streams

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"broadcast-board/internal/browser"
	"broadcast-board/internal/storage"
)

type stubRenderer struct {
	page *browser.Page
	err  error
	req  browser.Request
}

func (s *stubRenderer) Render(_ context.Context, req browser.Request) (*browser.Page, error) {
	s.req = req
	return s.page, s.err
}

func (s *stubRenderer) Close() error { return nil }

func TestCollectMergesResponsesAndMedia(t *testing.T) {
	renderer := &stubRenderer{page: &browser.Page{
		Responses: []string{
			"https://live-ch1.cjonstyle.net/cjmalllive/stream2/playlist.m3u8",
			"https://cdn.example.test/live/a.m3u8",
			"https://cdn.example.test/live/a.m3u8",
		},
		Media: []browser.Media{
			{Src: "https://cdn.example.test/live/a.m3u8", Context: "지금 방송중 현대홈쇼핑"},
			{Src: "https://cdn.example.test/live/b.m3u8", Context: "편성표"},
			{Src: "https://cdn.example.test/vod/c.mp4", Context: "롯데홈쇼핑"},
		},
	}}
	report := filepath.Join(t.TempDir(), "reports", "live_streams_report.json")
	locator := NewLocator(Options{ReportPath: report}, renderer, zerolog.Nop())

	result, err := locator.Collect(context.Background(), map[string]string{"현대홈쇼핑": "hyundai"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if renderer.req.URL != DefaultListingURL || renderer.req.WaitUntil != browser.WaitNetworkIdle || renderer.req.ResponseMarker != ".m3u8" || !renderer.req.CollectMedia {
		t.Fatalf("unexpected render request %+v", renderer.req)
	}
	if len(result.Items) != 3 {
		t.Fatalf("items = %+v, want 3 distinct playlists", result.Items)
	}
	if result.Items[0].URL != "https://cdn.example.test/live/a.m3u8" || result.Items[0].ContextText != "지금 방송중 현대홈쇼핑" {
		t.Fatalf("items not sorted or not enriched: %+v", result.Items[0])
	}
	if result.Matched["cjon"] == "" || result.Matched["hyundai"] != "https://cdn.example.test/live/a.m3u8" {
		t.Fatalf("matched = %v", result.Matched)
	}
	if len(result.Unmapped) != 1 || result.Unmapped[0] != "https://cdn.example.test/live/b.m3u8" {
		t.Fatalf("unmapped = %v", result.Unmapped)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	for _, key := range []string{"matched", "unmapped", "items"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("report misses %q: %s", key, data)
		}
	}
}

func TestCollectPropagatesRenderFailure(t *testing.T) {
	locator := NewLocator(Options{}, &stubRenderer{err: browser.ErrUnavailable}, zerolog.Nop())
	if _, err := locator.Collect(context.Background(), nil); !errors.Is(err, browser.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMatchFirstURLWinsAndPatternsBeatNames(t *testing.T) {
	items := []Item{
		{URL: "http://gstv-gsshop.gsshop.com/gsshop_hd/playlist.m3u8", ContextText: "CJ온스타일"},
		{URL: "http://liveout.catenoid.net/live-05-wshopping/playlist.m3u8"},
		{URL: "http://other.catenoid.net/second/playlist.m3u8"},
		{URL: "https://cdn.example.test/plus.m3u8", ContextText: "CJ온스타일+ 생방송"},
	}
	names := map[string]string{"CJ온스타일": "cjon", "CJ온스타일+": "cjon_plus"}

	result := Match(items, names)
	if result.Matched["gsshop"] != items[0].URL {
		t.Fatalf("gsshop = %q", result.Matched["gsshop"])
	}
	if result.Matched["shoppingnt"] != items[1].URL {
		t.Fatalf("shoppingnt should keep the first url, got %q", result.Matched["shoppingnt"])
	}
	if result.Matched["cjon_plus"] != items[3].URL {
		t.Fatalf("longest name should win, matched = %v", result.Matched)
	}
	if _, ok := result.Matched["cjon"]; ok {
		t.Fatalf("cjon should stay unmatched, matched = %v", result.Matched)
	}
	if len(result.Unmapped) != 0 {
		t.Fatalf("unmapped = %v", result.Unmapped)
	}
}

type memChannels struct {
	channels []storage.Channel
	updates  map[string]string
}

func (m *memChannels) ListChannels(context.Context) ([]storage.Channel, error) {
	return m.channels, nil
}

func (m *memChannels) UpdateChannelStream(_ context.Context, code, url string) (bool, error) {
	for _, ch := range m.channels {
		if ch.Code == code {
			m.updates[code] = url
			return true, nil
		}
	}
	return false, nil
}

type stubCollector struct {
	result Result
	names  map[string]string
}

func (s *stubCollector) Collect(_ context.Context, nameToCode map[string]string) (Result, error) {
	s.names = nameToCode
	return s.result, nil
}

func TestSyncUpdatesKnownChannels(t *testing.T) {
	store := &memChannels{
		channels: []storage.Channel{{Code: "cjon", Name: "CJ온스타일"}, {Code: "ns", Name: ""}},
		updates:  make(map[string]string),
	}
	collector := &stubCollector{result: Result{Matched: map[string]string{
		"cjon":   "https://cjon.test/a.m3u8",
		"gsshop": "https://gs.test/b.m3u8",
	}}}

	known := map[string]string{"GS SHOP": "gsshop", "CJ온스타일": "cj"}
	updated, err := Sync(context.Background(), collector, store, known, zerolog.Nop())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if updated != 1 || store.updates["cjon"] != "https://cjon.test/a.m3u8" {
		t.Fatalf("updated=%d updates=%v", updated, store.updates)
	}
	if len(collector.names) != 2 || collector.names["CJ온스타일"] != "cjon" || collector.names["GS SHOP"] != "gsshop" {
		t.Fatalf("name table = %v", collector.names)
	}
}

func TestSyncWithoutMatchesWritesNothing(t *testing.T) {
	store := &memChannels{channels: []storage.Channel{{Code: "cjon", Name: "CJ온스타일"}}, updates: make(map[string]string)}
	updated, err := Sync(context.Background(), &stubCollector{}, store, nil, zerolog.Nop())
	if err != nil || updated != 0 || len(store.updates) != 0 {
		t.Fatalf("updated=%d err=%v updates=%v", updated, err, store.updates)
	}
}

func TestWriteReportKeepsQueryAmpersands(t *testing.T) {
	const url = "https://live.test/master.m3u8?token=abc&expires=99"
	path := filepath.Join(t.TempDir(), "report.json")
	result := Result{
		Matched:  map[string]string{"gsshop": url},
		Unmapped: []string{},
		Items:    []Item{{URL: url, ContextText: "GS SHOP <LIVE>"}},
	}
	if err := WriteReport(path, result); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	text := string(data)
	if strings.Contains(text, `\u0026`) || strings.Contains(text, `\u003c`) {
		t.Fatalf("report escapes html characters: %s", text)
	}
	if !strings.Contains(text, "token=abc&expires=99") || !strings.Contains(text, "\n  \"matched\"") {
		t.Fatalf("unexpected report layout: %s", text)
	}

	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Matched["gsshop"] != url {
		t.Fatalf("matched = %v", decoded.Matched)
	}
}
