package alerting

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"broadcast-board/internal/metrics"
	"broadcast-board/internal/normalize"
	"broadcast-board/internal/storage"
)

// Store is the persistence read by the alert job.
type Store interface {
	ListActiveAlerts(ctx context.Context) ([]storage.Alert, error)
	ChannelIDsByCodes(ctx context.Context, codes []string) ([]int64, error)
	ListUpcomingSlots(ctx context.Context, channelIDs []int64, from, to time.Time) ([]storage.Slot, error)
}

// JobOptions tune the alert job.
type JobOptions struct {
	// DedupeTTL is how long a sent (alert, slot) pair is remembered.
	DedupeTTL time.Duration
}

// Job matches upcoming slots against alert subscriptions and notifies.
type Job struct {
	opts      JobOptions
	store     Store
	notifiers map[storage.DestinationType]Notifier
	dedupe    Deduper
	logger    zerolog.Logger
	now       func() time.Time
}

// NewJob constructs the alert job. dedupe may be nil.
func NewJob(opts JobOptions, store Store, notifiers map[storage.DestinationType]Notifier, dedupe Deduper, logger zerolog.Logger) *Job {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 24 * time.Hour
	}
	return &Job{
		opts:      opts,
		store:     store,
		notifiers: notifiers,
		dedupe:    dedupe,
		logger:    logger.With().Str("component", "alert_job").Logger(),
		now:       time.Now,
	}
}

// WithClock replaces the job clock.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run sends one notification per matching (alert, slot) pair and returns the
// number sent. Delivery failures are logged and do not stop the run.
func (j *Job) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	alerts, err := j.store.ListActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alerts: %w", err)
	}

	sent := 0
	for _, alert := range alerts {
		if alert.DestinationValue == "" {
			continue
		}
		notifier, ok := j.notifiers[alert.DestinationType]
		if !ok {
			j.logger.Debug().Int64("alert_id", alert.ID).Str("type", string(alert.DestinationType)).Msg("no notifier for destination type")
			continue
		}

		channelIDs, err := j.store.ChannelIDsByCodes(ctx, alert.TargetChannelCodes)
		if err != nil {
			return sent, fmt.Errorf("resolve channels of alert %d: %w", alert.ID, err)
		}
		if len(channelIDs) == 0 {
			continue
		}

		windowEnd := now.Add(time.Duration(alert.NotifyBeforeMinutes) * time.Minute)
		slots, err := j.store.ListUpcomingSlots(ctx, channelIDs, now, windowEnd)
		if err != nil {
			return sent, fmt.Errorf("list slots for alert %d: %w", alert.ID, err)
		}

		for _, slot := range slots {
			if !Matches(alert, slot) {
				continue
			}
			if j.deliver(ctx, notifier, alert, slot) {
				sent++
			}
		}
	}

	j.logger.Info().Int("sent", sent).Msg("alert run finished")
	return sent, nil
}

func (j *Job) deliver(ctx context.Context, notifier Notifier, alert storage.Alert, slot storage.Slot) bool {
	msg := Render(alert, slot)
	send := func() error {
		err := notifier.Notify(ctx, alert.DestinationValue, msg)
		metrics.ObserveAlert(string(alert.DestinationType), err)
		return err
	}

	var (
		ran = true
		err error
	)
	if j.dedupe != nil {
		key := fmt.Sprintf("alert:%d:%d", alert.ID, slot.ID)
		ran, err = j.dedupe.Once(ctx, key, j.opts.DedupeTTL, send)
		if !ran && err != nil {
			j.logger.Warn().Err(err).Str("key", key).Msg("dedupe unavailable, sending anyway")
			ran, err = true, send()
		}
	} else {
		err = send()
	}

	logger := j.logger.With().Int64("alert_id", alert.ID).Int64("slot_id", slot.ID).Logger()
	switch {
	case !ran:
		logger.Debug().Msg("alert already sent")
		return false
	case err != nil:
		logger.Error().Err(err).Msg("failed to dispatch alert")
		return false
	}
	return true
}

// Matches reports whether slot satisfies the alert's keywords and, when set,
// its categories. Keywords match case-insensitively as substrings.
func Matches(alert storage.Alert, slot storage.Slot) bool {
	if len(alert.Categories) > 0 && !slices.Contains(alert.Categories, slot.Category) {
		return false
	}
	title := strings.ToLower(slot.NormalizedTitle)
	for _, kw := range alert.Keywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Render builds the notification for one slot.
func Render(alert storage.Alert, slot storage.Slot) Message {
	priceText := slot.PriceText
	if priceText == "" {
		priceText = "정보없음"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] 곧 시작하는 방송: %s\n", alert.Name, slot.RawTitle)
	fmt.Fprintf(&b, "시작: %s (UTC)\n", normalize.ISOTime(slot.StartAt))
	fmt.Fprintf(&b, "가격: %s", priceText)
	return Message{
		Subject: "[BroadcastBoard] " + alert.Name,
		Text:    b.String(),
	}
}
