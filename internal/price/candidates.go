package price

import (
	"regexp"
	"strings"
)

// forcedBrowserHosts block static fetches often enough that item lookups go
// straight to the browser.
var forcedBrowserHosts = []string{
	"m.gmarket.co.kr",
	"mobile.gmarket.co.kr",
	"item.gmarket.co.kr",
}

var goodsCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/vi/product/(\d+)`),
	regexp.MustCompile(`goodscode=(\d+)`),
	regexp.MustCompile(`goodsCode=(\d+)`),
}

var blockMarkers = []string{"error404", "access denied"}

// GoodsCode extracts the product code from a product URL.
func GoodsCode(url string) string {
	for _, re := range goodsCodePatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// IsForcedBrowserHost reports whether url belongs to a host served only through the browser.
func IsForcedBrowserHost(url string) bool {
	for _, host := range forcedBrowserHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}

// BrowserCandidates lists the pages rendered for url: the URL itself followed
// by alternate item pages built from its goods code.
func BrowserCandidates(url string) []string {
	urls := []string{url}
	code := GoodsCode(url)
	if code == "" {
		return urls
	}
	return append(urls,
		"https://m.gmarket.co.kr/Item?goodsCode="+code,
		"https://m.gmarket.co.kr/Item?goodscode="+code,
		"https://mobile.gmarket.co.kr/Item?goodscode="+code,
		"https://item.gmarket.co.kr/Item?goodscode="+code,
		"https://mitem.gmarket.co.kr/Item?goodscode="+code,
	)
}

// HTTPCandidates lists the pages fetched statically for a browser-only URL.
// The desktop item host sometimes answers when the mobile hosts refuse.
func HTTPCandidates(url string) []string {
	var urls []string
	if code := GoodsCode(url); code != "" {
		urls = append(urls,
			"https://item.gmarket.co.kr/Item?goodsCode="+code,
			"https://item.gmarket.co.kr/Item?goodscode="+code,
			"https://mitem.gmarket.co.kr/Item?goodscode="+code,
			"https://mobile.gmarket.co.kr/Item?goodscode="+code,
		)
	}
	return append(urls, url)
}

// Blocked reports whether a page body is empty or a bot-wall response.
func Blocked(html string) bool {
	if html == "" {
		return true
	}
	lowered := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
