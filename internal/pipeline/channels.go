package pipeline

import (
	"regexp"
	"strings"
)

// UnknownChannelCode is used when a channel name has no usable characters.
const UnknownChannelCode = "unknown"

const liveLayerBase = "https://mobile.gmarket.co.kr/HomeShopping/BroadcastLayer?compId="

var channelCodes = map[string]string{
	"롯데홈쇼핑":   "lotte",
	"롯데원티비":   "lotte_one",
	"현대홈쇼핑":   "hyundai",
	"GS SHOP": "gsshop",
	"홈앤쇼핑":    "hnsmall",
	"공영쇼핑":    "gongs",
	"NS홈쇼핑":   "ns",
	"CJ온스타일":  "cjon",
	"CJ온스타일+": "cjon_plus",
	"신세계라이브":  "ssg_live",
	"쇼핑엔티":    "shoppingnt",
	"KT알파쇼핑":  "ktalpha",
	"SK스토아":   "skstoa",
}

// liveCompIDs maps channel codes to the live player layer of the schedule site.
var liveCompIDs = map[string]string{
	"gsshop":     "gsshoplive",
	"hnsmall":    "oshopping",
	"hyundai":    "hhome01",
	"ktalpha":    "kthshop",
	"lotte":      "lotteotv",
	"lotte_one":  "lotteotv",
	"ns":         "nsmalltv",
	"gongs":      "publichstv",
	"shoppingnt": "shpnt1",
	"skstoa":     "skstoa",
	"ssg_live":   "ssgtvgmkt",
}

// liveOverrides wins over the layer URL for broadcasters with their own page.
var liveOverrides = map[string]string{
	"skstoa": "https://www.skstoa.com/tv_schedule",
}

var knownStreams = map[string]string{
	"cjon":       "https://live-ch1.cjonstyle.net/cjmalllive/_definst_/stream2/playlist.m3u8",
	"gsshop":     "http://gstv-gsshop.gsshop.com/gsshop_hd/_definst_/gsshop_hd.stream/playlist.m3u8",
	"shoppingnt": "http://liveout.catenoid.net/live-05-wshopping/wshopping_1500k/playlist.m3u8",
}

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// ChannelCode maps a display name to its stable channel code.
func ChannelCode(name string) string {
	if code, ok := channelCodes[name]; ok {
		return code
	}
	if code := strings.ToLower(nonAlnum.ReplaceAllString(name, "")); code != "" {
		return code
	}
	return UnknownChannelCode
}

// NameCodes returns a copy of the display name to channel code table.
func NameCodes() map[string]string {
	names := make(map[string]string, len(channelCodes))
	for name, code := range channelCodes {
		names[name] = code
	}
	return names
}

// LiveURL returns the live player page for code, or "".
func LiveURL(code string) string {
	if url, ok := liveOverrides[code]; ok {
		return url
	}
	if compID, ok := liveCompIDs[code]; ok {
		return liveLayerBase + compID
	}
	return ""
}

// KnownStreamURL returns the pinned HLS playlist for code, or "".
func KnownStreamURL(code string) string {
	return knownStreams[code]
}
