package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRunRe = regexp.MustCompile(`\d[\d,]*`)

// ParsePriceText returns the first integer amount found in text.
func ParsePriceText(text string) *int64 {
	if text == "" {
		return nil
	}
	match := digitRunRe.FindString(text)
	if match == "" {
		return nil
	}
	return parseAmount(match)
}

// ParsePriceInfo infers original and sale prices from a display string.
// Two or more amounts yield original=max and sale=min; a single amount is the sale.
func ParsePriceInfo(text string) (original, sale *int64, rate *float64) {
	if text == "" {
		return nil, nil, nil
	}

	matches := digitRunRe.FindAllString(text, -1)
	values := make([]int64, 0, len(matches))
	for _, m := range matches {
		if v := parseAmount(m); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return nil, nil, nil
	}

	if len(values) == 1 {
		return nil, Int64(values[0]), nil
	}

	hi, lo := values[0], values[0]
	for _, v := range values[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	original, sale = Int64(hi), Int64(lo)
	return original, sale, DiscountRate(original, sale)
}

// DiscountRate computes the percentage off the original price, rounding the
// float64 quotient to one decimal. It is undefined unless both prices are
// positive and sale <= original.
func DiscountRate(original, sale *int64) *float64 {
	if original == nil || sale == nil {
		return nil
	}
	if *original <= 0 || *sale <= 0 || *sale > *original {
		return nil
	}

	pct := float64(*original-*sale) / float64(*original) * 100
	f, err := strconv.ParseFloat(strconv.FormatFloat(pct, 'f', 1, 64), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseAmount(s string) *int64 {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
