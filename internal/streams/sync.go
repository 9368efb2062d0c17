package streams

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"broadcast-board/internal/storage"
)

// ChannelStore is the channel persistence used by Sync.
type ChannelStore interface {
	ListChannels(ctx context.Context) ([]storage.Channel, error)
	UpdateChannelStream(ctx context.Context, code, streamURL string) (bool, error)
}

// Collector discovers playlists for a name to code table.
type Collector interface {
	Collect(ctx context.Context, nameToCode map[string]string) (Result, error)
}

// Sync collects playlists and stores the matched URL on every known channel.
// The name table starts from known and is overlaid with the stored channel
// names. It returns the number of channels updated.
func Sync(ctx context.Context, collector Collector, store ChannelStore, known map[string]string, logger zerolog.Logger) (int, error) {
	logger = logger.With().Str("component", "stream_sync").Logger()

	channels, err := store.ListChannels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}
	nameToCode := make(map[string]string, len(known)+len(channels))
	for name, code := range known {
		nameToCode[name] = code
	}
	for _, ch := range channels {
		if ch.Name != "" {
			nameToCode[ch.Name] = ch.Code
		}
	}

	result, err := collector.Collect(ctx, nameToCode)
	if err != nil {
		return 0, err
	}
	if len(result.Matched) == 0 {
		logger.Warn().Msg("no stream url matched any channel; see the report")
		return 0, nil
	}

	updated := 0
	for code, url := range result.Matched {
		ok, err := store.UpdateChannelStream(ctx, code, url)
		if err != nil {
			return updated, fmt.Errorf("update stream of %s: %w", code, err)
		}
		if ok {
			updated++
		}
	}
	logger.Info().Int("updated", updated).Msg("channel stream urls updated")
	return updated, nil
}
