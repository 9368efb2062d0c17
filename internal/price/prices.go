// Package price resolves original and sale prices of product pages.
package price

import (
	"github.com/shopspring/decimal"

	"broadcast-board/internal/normalize"
)

// originalMarkup is the minimum ratio over the screen sale price for a
// sale-only detail page value to be read as the original price.
var originalMarkup = decimal.RequireFromString("1.05")

// Prices is an (original, sale) pair; either side may be unknown.
type Prices struct {
	Original *int64
	Sale     *int64
}

// Found reports whether at least one price is known.
func (p Prices) Found() bool {
	return p.Original != nil || p.Sale != nil
}

// Merge folds other into p. The lower sale wins because coupon and checkout
// prices undercut the broadcast price; the higher original wins.
func (p Prices) Merge(other Prices) Prices {
	if other.Sale != nil && (p.Sale == nil || *other.Sale < *p.Sale) {
		p.Sale = other.Sale
	}
	if other.Original != nil && (p.Original == nil || *other.Original > *p.Original) {
		p.Original = other.Original
	}
	return p
}

// MergeFetched folds a product detail page result into p. A detail page that
// only shows a sale price at least 5% above the screen price is showing the
// list price.
func (p Prices) MergeFetched(fetched Prices) Prices {
	merged := p.Merge(fetched)
	if merged.Original == nil && fetched.Sale != nil && merged.Sale != nil {
		threshold := decimal.NewFromInt(*merged.Sale).Mul(originalMarkup).IntPart()
		if *fetched.Sale >= threshold {
			merged.Original = fetched.Sale
		}
	}
	return merged
}

// Finalize swaps an inverted pair and computes the discount rate.
func (p Prices) Finalize() (Prices, *float64) {
	if p.Original != nil && p.Sale != nil && *p.Original < *p.Sale {
		p.Original, p.Sale = p.Sale, p.Original
	}
	return p, normalize.DiscountRate(p.Original, p.Sale)
}
