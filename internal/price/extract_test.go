package price

import "testing"

func TestExtractorsInIsolation(t *testing.T) {
	cases := []struct {
		name         string
		extractor    ExtractorFunc
		html         string
		wantOriginal int64
		wantSale     int64
	}{
		{
			name:      "coupon and price_real",
			extractor: couponPrice,
			html:      `<div class="price_innerwrap-coupon"><strong class="price_real">12,900원</strong></div><span class="price_real">15,000</span>`,
			wantSale:  12900,
		},
		{
			name:      "meta tag",
			extractor: metaPrice,
			html:      `<html><head><meta itemprop="price" content="25000"></head></html>`,
			wantSale:  25000,
		},
		{
			name:      "linked data with price specification",
			extractor: linkedDataPrice,
			html: `<script type="application/ld+json">
{"offers":[{"priceSpecification":{"price":"30,000","priceType":"RegularPrice"}},{"salePrice":21000.9}]}
</script>`,
			wantOriginal: 30000,
			wantSale:     21000,
		},
		{
			name:      "labelled dom price nodes",
			extractor: labelledDOMPrice,
			html: `<span class="text__price">정상가 50,000원</span>
<div class="text__price">혜택가 35,000원</div>
<div class="text__price-original"><span class="text__price">할인가 10,000원</span></div>
<p class="text__price">99,000원</p>`,
			wantOriginal: 50000,
			wantSale:     35000,
		},
		{
			name:         "original price block",
			extractor:    originalPriceNode,
			html:         `<div class="text__price-original"><span class="text__price">45,000원</span></div>`,
			wantOriginal: 45000,
		},
		{
			name:         "data attributes",
			extractor:    dataAttributePrice,
			html:         `<div data-list-price="48000" data-discount-price="33000" data-price="1000000"></div>`,
			wantOriginal: 48000,
			wantSale:     33000,
		},
		{
			name:         "label text",
			extractor:    labelTextPrice,
			html:         `<p>소비자가: 70,000 원</p><p>즉시할인가 49,000원</p><script>판매가 1,000원</script>`,
			wantOriginal: 70000,
			wantSale:     49000,
		},
		{
			name:         "raw json keys",
			extractor:    rawJSONPrice,
			html:         `<script>var s={"originalPrice":"88,000","SELLPRICE": 66000};</script>`,
			wantOriginal: 88000,
			wantSale:     66000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseWith(tc.html, []Extractor{tc.extractor})
			assertPrice(t, "original", got.Original, tc.wantOriginal)
			assertPrice(t, "sale", got.Sale, tc.wantSale)
		})
	}
}

func TestParseCombinesStrategies(t *testing.T) {
	html := `<html><head>
<meta property="product:price:amount" content="41000">
<script type="application/ld+json">{"@type":"Product","offers":{"price":"42,000","priceSpecification":[{"price":65000,"priceType":"https://schema.org/ListPrice"}]}}</script>
</head><body>
<div class="text__price-original"><span class="text__price">60,000원</span></div>
<span class="text__price">할인가 40,000원</span>
<div class="price_innerwrap-coupon"><strong class="price_real">38,500</strong></div>
<div data-origin-price="62000" data-sale-price="39500"></div>
<p>정상가 61,000원 판매가 39,900원</p>
<script>window.__STATE__={"consumerPrice":"63,000","finalPrice":37000}</script>
</body></html>`

	got := Parse(html)
	assertPrice(t, "original", got.Original, 65000)
	assertPrice(t, "sale", got.Sale, 37000)
}

func TestCandidatesSelect(t *testing.T) {
	small := Candidates{Original: []int64{50}, Sale: []int64{99}}.Select()
	if small.Found() {
		t.Fatalf("values under 100 must be discarded, got %+v", small)
	}

	swapped := Candidates{Original: []int64{1000, 900}, Sale: []int64{3000, 2000}}.Select()
	assertPrice(t, "original", swapped.Original, 2000)
	assertPrice(t, "sale", swapped.Sale, 1000)
}

func TestParseEmptyAndUnpriced(t *testing.T) {
	if Parse("").Found() {
		t.Fatal("empty html has no prices")
	}
	if Parse("<html><body><p>상품 설명 3종 구성</p></body></html>").Found() {
		t.Fatal("page without prices must yield nothing")
	}
}

func assertPrice(t *testing.T, label string, got *int64, want int64) {
	t.Helper()
	if want == 0 {
		if got != nil {
			t.Fatalf("%s: expected none, got %d", label, *got)
		}
		return
	}
	if got == nil || *got != want {
		if got == nil {
			t.Fatalf("%s: expected %d, got none", label, want)
		}
		t.Fatalf("%s: expected %d, got %d", label, want, *got)
	}
}
