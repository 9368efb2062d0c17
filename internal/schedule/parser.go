package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"broadcast-board/internal/htmltext"
	"broadcast-board/internal/normalize"
)

// Item is one parsed airing. Empty strings mean the field was not present.
type Item struct {
	StartAt     time.Time
	EndAt       time.Time
	RawTitle    string
	PriceText   string
	ImageURL    string
	ProductURL  string
	LiveURL     string
	ChannelName string
}

const (
	liveLayerMarker = "BroadcastLayer?compId="
	defaultDuration = time.Hour
)

var (
	meridiemTimeRe  = regexp.MustCompile(`(오전|오후)\s*(\d{1,2}):(\d{2})`)
	isoPrefixRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T`)
	digitsRe        = regexp.MustCompile(`\d[\d,]*`)
	trailingPrice   = regexp.MustCompile(`^(.*?)\s*(\d[\d,]*)\s*` + regexp.QuoteMeta(normalize.CurrencyMarker))
	amountPrefixRe  = regexp.MustCompile(`^[0-9][0-9,]*\s*` + regexp.QuoteMeta(normalize.CurrencyMarker))
	parenthesizedRe = regexp.MustCompile(`\(([^)]+)\)`)
	cssURLRe        = regexp.MustCompile(`url\(([^)]+)\)`)

	titleNoise = []string{"홈쇼핑특가", "관심상품으로 등록", "관심상품", "알림설정"}

	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
)

// Parser converts schedule markup into items.
type Parser struct {
	baseURL string
	zone    *time.Location
	now     func() time.Time
}

// NewParser builds a parser resolving relative links against baseURL.
// now supplies "today" for pages that only print a time of day.
func NewParser(baseURL string, now func() time.Time) *Parser {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if now == nil {
		now = time.Now
	}
	return &Parser{
		baseURL: strings.TrimRight(baseURL, "/"),
		zone:    normalize.SourceZone,
		now:     now,
	}
}

type itemKey struct {
	start int64
	title string
}

// Parse runs the structured and the timeline passes and merges their output,
// dropping repeats of the same start instant and title.
func (p *Parser) Parse(html string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse schedule markup: %w", err)
	}

	items := make([]Item, 0)
	seen := make(map[itemKey]struct{})
	add := func(item Item) {
		key := itemKey{start: item.StartAt.UnixNano(), title: item.RawTitle}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		items = append(items, item)
	}

	doc.Find("li[data-start-time]").Each(func(_ int, card *goquery.Selection) {
		if item, ok := p.parseCard(card); ok {
			add(item)
		}
	})

	today := p.now().In(p.zone)
	doc.Find("a").Each(func(_ int, link *goquery.Selection) {
		if item, ok := p.parseTimelineLink(link, today); ok {
			add(item)
		}
	})

	return items, nil
}

func (p *Parser) parseCard(card *goquery.Selection) (Item, bool) {
	startRaw, _ := card.Attr("data-start-time")
	start, ok := p.parseISO(startRaw)
	if !ok {
		return Item{}, false
	}
	endRaw, _ := card.Attr("data-end-time")
	end, ok := p.parseISO(endRaw)
	if !ok {
		end = start.Add(defaultDuration)
	}

	item := Item{StartAt: start, EndAt: end}

	if vendor := card.Find(".box--vendor_information .text").First(); vendor.Length() > 0 {
		item.ChannelName = strings.TrimSpace(vendor.Text())
	}

	if box := card.Find(".box--price").First(); box.Length() > 0 {
		if digits := digitsRe.FindString(htmltext.Join(box)); digits != "" {
			item.PriceText = digits + normalize.CurrencyMarker
		}
	}

	descText := htmltext.Join(card)
	if desc := card.Find(".box--item_description").First(); desc.Length() > 0 {
		descText = htmltext.Join(desc)
	}
	item.RawTitle = cleanTitle(descText, item.PriceText)

	card.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		switch {
		case href == "":
		case strings.Contains(href, liveLayerMarker):
			item.LiveURL = resolveLink(p.baseURL, href)
		case strings.Contains(href, "/vi/product/") || strings.Contains(href, "/Item"):
			item.ProductURL = resolveLink(p.baseURL, href)
		}
	})

	if style, ok := card.Find(".thumbnail").First().Attr("style"); ok {
		if m := cssURLRe.FindStringSubmatch(style); m != nil {
			item.ImageURL = strings.Trim(strings.TrimSpace(m[1]), `'"`)
		}
	}

	return item, true
}

func (p *Parser) parseTimelineLink(link *goquery.Selection, today time.Time) (Item, bool) {
	text := htmltext.Join(link)
	loc := meridiemTimeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Item{}, false
	}

	meridiem := text[loc[2]:loc[3]]
	hour, _ := strconv.Atoi(text[loc[4]:loc[5]])
	minute, _ := strconv.Atoi(text[loc[6]:loc[7]])
	if hour > 12 || minute > 59 {
		return Item{}, false
	}

	start := p.clockTime(today, meridiem, hour, minute)
	item := Item{StartAt: start, EndAt: start.Add(defaultDuration)}

	remainder := strings.TrimSpace(text[loc[1]:])
	if m := trailingPrice.FindStringSubmatch(remainder); m != nil {
		item.RawTitle = strings.TrimSpace(m[1])
		item.PriceText = m[2] + normalize.CurrencyMarker
	} else {
		item.RawTitle = remainder
	}

	if m := parenthesizedRe.FindStringSubmatch(text); m != nil {
		item.ChannelName = strings.TrimSpace(m[1])
	}
	if parent := link.Parent(); parent.Length() > 0 {
		if vendor := parent.Find(`a[href*="minishop.gmarket.co.kr"]`).First(); vendor.Length() > 0 {
			if name := strings.TrimSpace(vendor.Text()); name != "" {
				item.ChannelName = name
			}
		}
	}

	if href, ok := link.Attr("href"); ok && isNavigable(href) {
		if strings.Contains(href, liveLayerMarker) {
			item.LiveURL = resolveLink(p.baseURL, href)
		} else {
			item.ProductURL = resolveLink(p.baseURL, href)
		}
	}

	return item, true
}

// clockTime maps a 12-hour clock reading on the given local day to UTC.
// 12 AM is midnight and 12 PM is noon.
func (p *Parser) clockTime(day time.Time, meridiem string, hour, minute int) time.Time {
	if meridiem == "오전" {
		if hour == 12 {
			hour = 0
		}
	} else if hour != 12 {
		hour += 12
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, p.zone)
	return local.UTC()
}

func (p *Parser) parseISO(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || !isoPrefixRe.MatchString(value) {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, p.zone); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// cleanTitle removes the price and UI chrome from a card description.
func cleanTitle(text, priceText string) string {
	title := text
	if priceText != "" {
		title = strings.ReplaceAll(title, priceText, "")
	}
	title = stripAmounts(title)
	for _, noise := range titleNoise {
		title = strings.ReplaceAll(title, noise, "")
	}
	return htmltext.Compact(title)
}

// stripAmounts deletes standalone "12,900원" tokens. A token counts only when
// it is not glued to a preceding or following word character.
func stripAmounts(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r >= '0' && r <= '9' && !wordBefore(s, i) {
			if loc := amountPrefixRe.FindStringIndex(s[i:]); loc != nil && !wordAt(s, i+loc[1]) {
				i += loc[1]
				continue
			}
		}
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

func wordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func wordAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isNavigable(href string) bool {
	href = strings.TrimSpace(href)
	return href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}
