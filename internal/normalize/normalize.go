// Package normalize holds the pure text and price helpers shared by the
// schedule parser, the price resolver and the slot writer.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var noiseKeywords = []string{
	"무료배송",
	"단독",
	"특가",
	"방송중",
	"오늘만",
	"기획전",
}

// Title strips promotional noise and punctuation and lower-cases the result.
func Title(raw string) string {
	if raw == "" {
		return ""
	}

	title := raw
	for _, kw := range noiseKeywords {
		title = strings.ReplaceAll(title, kw, "")
	}

	title = strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return ' '
	}, title)

	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func keepRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r >= '가' && r <= '힣':
		return true
	default:
		return unicode.IsSpace(r)
	}
}

// SlotHash derives the stable identity of a broadcast slot.
//
// The hashed text is "{channel}|{start}|{title}" lower-cased, where start is
// the naive UTC ISO-8601 form with a microsecond fraction only when non-zero.
// Existing rows were keyed this way, so the layout must not change.
func SlotHash(channelID int64, startAt time.Time, normalizedTitle string) string {
	base := strings.ToLower(fmt.Sprintf("%d|%s|%s", channelID, ISOTime(startAt), normalizedTitle))
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// ISOTime formats t as naive UTC ISO-8601 with microseconds only when non-zero.
func ISOTime(t time.Time) string {
	t = t.UTC()
	out := t.Format("2006-01-02T15:04:05")
	if micros := t.Nanosecond() / 1000; micros != 0 {
		out += "." + fmt.Sprintf("%06d", micros)
	}
	return out
}

// Int64 is a small helper for building optional prices.
func Int64(v int64) *int64 {
	return &v
}

// FormatPrice renders an optional price for logs and tables.
func FormatPrice(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
