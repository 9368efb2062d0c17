package price

import (
	"time"

	"broadcast-board/internal/browser"
	"broadcast-board/internal/normalize"
)

const renderedOriginalSelector = ".text__price-original .text__price, .text__price-original"

var priceWaitSelectors = []string{"strong.price_real", ".price_real", ".text__price-original"}

func renderRequest(url string, navigationTimeout time.Duration) browser.Request {
	return browser.Request{
		URL:                 url,
		WaitUntil:           browser.WaitDOMContentLoaded,
		NavigationTimeout:   navigationTimeout,
		WaitSelectors:       priceWaitSelectors,
		WaitSelectorTimeout: 1500 * time.Millisecond,
		Settle:              300 * time.Millisecond,
		TextSelectors:       []string{couponPriceSelector, realPriceSelector, renderedOriginalSelector},
	}
}

// ExtractRendered reads prices straight from the rendered price hooks: the
// coupon price, else the lowest price_real, plus the original price block.
func ExtractRendered(page *browser.Page) Prices {
	var p Prices
	if page == nil {
		return p
	}

	if coupon := page.Texts[couponPriceSelector]; len(coupon) > 0 {
		p.Sale = normalize.ParsePriceText(coupon[0])
	} else {
		for _, text := range page.Texts[realPriceSelector] {
			v := normalize.ParsePriceText(text)
			if v == nil || *v == 0 {
				continue
			}
			if p.Sale == nil || *v < *p.Sale {
				p.Sale = v
			}
		}
	}

	if original := page.Texts[renderedOriginalSelector]; len(original) > 0 {
		p.Original = normalize.ParsePriceText(original[0])
	}
	return p
}
