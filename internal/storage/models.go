package storage

import "time"

// Status is the airing state of a slot, derived from its start/end window.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusLive      Status = "LIVE"
	StatusEnded     Status = "ENDED"
)

// ComputeStatus derives the status of a slot at now.
func ComputeStatus(start, end, now time.Time) Status {
	switch {
	case start.After(now):
		return StatusScheduled
	case !now.After(end):
		return StatusLive
	default:
		return StatusEnded
	}
}

// DestinationType selects how an alert is delivered.
type DestinationType string

const (
	DestinationSlack DestinationType = "SLACK"
	DestinationEmail DestinationType = "EMAIL"
)

// Channel is a home-shopping broadcaster.
type Channel struct {
	ID        int64
	Code      string
	Name      string
	LogoURL   string
	LiveURL   string
	StreamURL string
}

// ChannelUpsert carries what a run learned about a channel. Empty URLs leave
// the stored values untouched.
type ChannelUpsert struct {
	Code      string
	Name      string
	LogoURL   string
	LiveURL   string
	StreamURL string
}

// Slot is one airing of one product on one channel.
type Slot struct {
	ID              int64
	ChannelID       int64
	ChannelCode     string
	SourceCode      string
	StartAt         time.Time
	EndAt           time.Time
	RawTitle        string
	NormalizedTitle string
	Category        string
	ProductURL      string
	LiveURL         string
	SalePrice       *int64
	OriginalPrice   *int64
	DiscountRate    *float64
	PriceText       string
	ImageURL        string
	Status          Status
	SlotHash        string
}

// PriceHistory is one recorded price change of a slot.
type PriceHistory struct {
	ID            int64
	SlotID        int64
	CollectedAt   time.Time
	SalePrice     *int64
	OriginalPrice *int64
	DiscountRate  *float64
}

// SamePrices reports whether h records the given sale/original pair.
func (h PriceHistory) SamePrices(sale, original *int64) bool {
	return equalPrice(h.SalePrice, sale) && equalPrice(h.OriginalPrice, original)
}

func equalPrice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Alert is a user's keyword subscription.
type Alert struct {
	ID                  int64
	Name                string
	TargetChannelCodes  []string
	Keywords            []string
	Categories          []string
	NotifyBeforeMinutes int
	DestinationType     DestinationType
	DestinationValue    string
	Active              bool
}
