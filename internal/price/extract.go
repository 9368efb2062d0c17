package price

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"broadcast-board/internal/htmltext"
	"broadcast-board/internal/normalize"
)

// minPlausiblePrice drops quantities, ratings and other small numbers.
const minPlausiblePrice = 100

var (
	saleKeys = map[string]struct{}{
		"saleprice": {}, "sellprice": {}, "sellingprice": {},
		"discountprice": {}, "finalprice": {}, "price": {},
	}
	originalKeys = map[string]struct{}{
		"originprice": {}, "originalprice": {}, "listprice": {}, "consumerprice": {},
		"regularprice": {}, "normalprice": {}, "wasprice": {},
	}

	saleLabels     = []string{"할인가", "할인판매가", "즉시할인가", "혜택가", "최종가", "판매가"}
	originalLabels = []string{"정가", "정상가", "소비자가", "기준가", "기존가"}

	saleLabelPatterns     = labelPatterns(saleLabels)
	originalLabelPatterns = labelPatterns(originalLabels)
	saleKeyPatterns       = rawKeyPatterns(saleKeys)
	originalKeyPatterns   = rawKeyPatterns(originalKeys)
)

const (
	couponPriceSelector   = ".price_innerwrap-coupon strong.price_real"
	realPriceSelector     = "strong.price_real, .price_real"
	originalPriceSelector = ".text__price-original .text__price"
	metaPriceSelector     = `meta[property="product:price:amount"], meta[itemprop="price"], meta[name="price"]`
	domPriceSelector      = "span.text__price, div.text__price, p.text__price"
	ldJSONSelector        = `script[type="application/ld+json"]`
)

func labelPatterns(labels []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, label := range labels {
		out = append(out, regexp.MustCompile(regexp.QuoteMeta(label)+`[\s\p{Z}]*[:\s\p{Z}]*([0-9][0-9,]*)[\s\p{Z}]*`+normalize.CurrencyMarker))
	}
	return out
}

func rawKeyPatterns(keys map[string]struct{}) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keys))
	for key := range keys {
		out = append(out, regexp.MustCompile(`(?i)"`+regexp.QuoteMeta(key)+`"\s*:\s*"?([0-9,]+)`))
	}
	return out
}

// Document is one product page prepared for extraction.
type Document struct {
	HTML string
	DOM  *goquery.Document
}

// NewDocument parses html.
func NewDocument(html string) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Document{HTML: html, DOM: dom}, nil
}

// Candidates collects raw price observations.
type Candidates struct {
	Original []int64
	Sale     []int64
}

// AddOriginal records a positive original price.
func (c *Candidates) AddOriginal(v *int64) {
	if v != nil && *v != 0 {
		c.Original = append(c.Original, *v)
	}
}

// AddSale records a positive sale price.
func (c *Candidates) AddSale(v *int64) {
	if v != nil && *v != 0 {
		c.Sale = append(c.Sale, *v)
	}
}

// Select picks the highest original and the lowest sale among plausible
// values, swapping them when inverted.
func (c Candidates) Select() Prices {
	var p Prices
	for _, v := range c.Original {
		if v >= minPlausiblePrice && (p.Original == nil || v > *p.Original) {
			p.Original = normalize.Int64(v)
		}
	}
	for _, v := range c.Sale {
		if v >= minPlausiblePrice && (p.Sale == nil || v < *p.Sale) {
			p.Sale = normalize.Int64(v)
		}
	}
	if p.Original != nil && p.Sale != nil && *p.Original < *p.Sale {
		p.Original, p.Sale = p.Sale, p.Original
	}
	return p
}

// Extractor appends the candidates one strategy finds in a document.
type Extractor interface {
	Extract(doc *Document, c *Candidates)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(doc *Document, c *Candidates)

// Extract calls f.
func (f ExtractorFunc) Extract(doc *Document, c *Candidates) { f(doc, c) }

// DefaultExtractors is the strategy list used by Parse.
var DefaultExtractors = []Extractor{
	ExtractorFunc(couponPrice),
	ExtractorFunc(metaPrice),
	ExtractorFunc(linkedDataPrice),
	ExtractorFunc(labelledDOMPrice),
	ExtractorFunc(originalPriceNode),
	ExtractorFunc(dataAttributePrice),
	ExtractorFunc(labelTextPrice),
	ExtractorFunc(rawJSONPrice),
}

// Parse extracts prices from html with DefaultExtractors.
func Parse(html string) Prices {
	return ParseWith(html, DefaultExtractors)
}

// ParseWith extracts prices from html with the given strategies.
func ParseWith(html string, extractors []Extractor) Prices {
	if html == "" {
		return Prices{}
	}
	doc, err := NewDocument(html)
	if err != nil {
		return Prices{}
	}
	var c Candidates
	for _, ex := range extractors {
		ex.Extract(doc, &c)
	}
	return c.Select()
}

// couponPrice reads the coupon-applied final price and every price_real node.
func couponPrice(doc *Document, c *Candidates) {
	if coupon := doc.DOM.Find(couponPriceSelector).First(); coupon.Length() > 0 {
		c.AddSale(normalize.ParsePriceText(htmltext.Join(coupon)))
	}
	doc.DOM.Find(realPriceSelector).Each(func(_ int, s *goquery.Selection) {
		c.AddSale(normalize.ParsePriceText(htmltext.Join(s)))
	})
}

func metaPrice(doc *Document, c *Candidates) {
	doc.DOM.Find(metaPriceSelector).Each(func(_ int, s *goquery.Selection) {
		c.AddSale(normalize.ParsePriceText(s.AttrOr("content", "")))
	})
}

func linkedDataPrice(doc *Document, c *Candidates) {
	doc.DOM.Find(ldJSONSelector).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}
		walkJSON(data, c)
	})
}

func walkJSON(data any, c *Candidates) {
	switch v := data.(type) {
	case map[string]any:
		for key, value := range v {
			lower := strings.ToLower(key)
			if _, ok := originalKeys[lower]; ok {
				c.AddOriginal(coercePrice(value))
			}
			if _, ok := saleKeys[lower]; ok {
				c.AddSale(coercePrice(value))
			}
			if lower == "pricespecification" {
				priceSpecification(value, c)
			}
			walkJSON(value, c)
		}
	case []any:
		for _, item := range v {
			walkJSON(item, c)
		}
	}
}

// priceSpecification classifies schema.org price specifications by priceType;
// an untyped specification is a sale price.
func priceSpecification(spec any, c *Candidates) {
	switch v := spec.(type) {
	case []any:
		for _, item := range v {
			priceSpecification(item, c)
		}
	case map[string]any:
		price := coercePrice(v["price"])
		if price == nil || *price == 0 {
			return
		}
		priceType := ""
		if t, ok := v["priceType"]; ok && t != nil {
			if s, ok := t.(string); ok {
				priceType = strings.ToLower(s)
			}
		}
		switch {
		case strings.Contains(priceType, "listprice"),
			strings.Contains(priceType, "original"),
			strings.Contains(priceType, "regular"):
			c.AddOriginal(price)
		default:
			c.AddSale(price)
		}
	}
}

func coercePrice(value any) *int64 {
	switch v := value.(type) {
	case float64:
		return normalize.Int64(int64(v))
	case string:
		return normalize.ParsePriceText(v)
	}
	return nil
}

// labelledDOMPrice classifies text__price nodes by the label they carry.
// Nodes inside the original price block are left to originalPriceNode.
func labelledDOMPrice(doc *Document, c *Candidates) {
	doc.DOM.Find(domPriceSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(".text__price-original").Length() > 0 {
			return
		}
		text := htmltext.Join(s)
		price := normalize.ParsePriceText(text)
		if price == nil || *price == 0 {
			return
		}
		switch {
		case containsAny(text, originalLabels):
			c.AddOriginal(price)
		case containsAny(text, saleLabels):
			c.AddSale(price)
		}
	})
}

func originalPriceNode(doc *Document, c *Candidates) {
	doc.DOM.Find(originalPriceSelector).Each(func(_ int, s *goquery.Selection) {
		c.AddOriginal(normalize.ParsePriceText(htmltext.Join(s)))
	})
}

func dataAttributePrice(doc *Document, c *Candidates) {
	doc.DOM.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range s.Nodes[0].Attr {
			key := strings.ToLower(attr.Key)
			if !strings.Contains(key, "price") {
				continue
			}
			price := normalize.ParsePriceText(attr.Val)
			if price == nil || *price == 0 {
				continue
			}
			switch {
			case strings.Contains(key, "original"), strings.Contains(key, "origin"), strings.Contains(key, "list"):
				c.AddOriginal(price)
			case strings.Contains(key, "sale"), strings.Contains(key, "sell"), strings.Contains(key, "discount"):
				c.AddSale(price)
			}
		}
	})
}

// labelTextPrice searches the visible page text for "<label> 12,345원".
func labelTextPrice(doc *Document, c *Candidates) {
	text := htmltext.Join(doc.DOM.Selection)
	for _, re := range originalLabelPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			c.AddOriginal(normalize.ParsePriceText(m[1]))
		}
	}
	for _, re := range saleLabelPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			c.AddSale(normalize.ParsePriceText(m[1]))
		}
	}
}

// rawJSONPrice finds price keys in state embedded by client-side rendering.
func rawJSONPrice(doc *Document, c *Candidates) {
	for _, re := range originalKeyPatterns {
		for _, m := range re.FindAllStringSubmatch(doc.HTML, -1) {
			c.AddOriginal(normalize.ParsePriceText(m[1]))
		}
	}
	for _, re := range saleKeyPatterns {
		for _, m := range re.FindAllStringSubmatch(doc.HTML, -1) {
			c.AddSale(normalize.ParsePriceText(m[1]))
		}
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
