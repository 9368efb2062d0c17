package pipeline

import (
	"context"
	"fmt"
	"time"

	"broadcast-board/internal/normalize"
	"broadcast-board/internal/price"
	"broadcast-board/internal/schedule"
	"broadcast-board/internal/storage"
)

// UpsertSlots resolves the prices of one channel's items, then writes them
// inside a single transaction and appends price history when the
// (sale, original) pair moved. No network lookup runs while the transaction
// is open.
func (p *Pipeline) UpsertSlots(ctx context.Context, channel storage.Channel, items []schedule.Item, priceMap map[string]price.Prices, resolver PriceResolver) (created, updated int, err error) {
	now := p.now().UTC()
	slots := p.buildSlots(ctx, channel, items, priceMap, resolver, now)

	err = p.store.InTx(ctx, func(w storage.SlotWriter) error {
		created, updated = 0, 0
		for _, slot := range slots {
			existing, found, err := w.FindSlotByHash(ctx, slot.SlotHash)
			if err != nil {
				return err
			}
			if found {
				slot.ID = existing.ID
				if err := w.UpdateSlot(ctx, slot); err != nil {
					return err
				}
				updated++
			} else {
				if err := w.InsertSlot(ctx, &slot); err != nil {
					return err
				}
				created++
			}

			if err := recordPriceHistory(ctx, w, slot, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("upsert slots for channel %s: %w", channel.Code, err)
	}
	return created, updated, nil
}

// buildSlots drops repeated slot hashes before any price lookup; the first
// occurrence wins.
func (p *Pipeline) buildSlots(ctx context.Context, channel storage.Channel, items []schedule.Item, priceMap map[string]price.Prices, resolver PriceResolver, now time.Time) []storage.Slot {
	seen := make(map[string]struct{}, len(items))
	slots := make([]storage.Slot, 0, len(items))

	for _, item := range items {
		normalized := normalize.Title(item.RawTitle)
		hash := normalize.SlotHash(channel.ID, item.StartAt, normalized)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		prices, discount := p.resolvePrices(ctx, item, priceMap, resolver)
		slots = append(slots, storage.Slot{
			ChannelID:       channel.ID,
			ChannelCode:     channel.Code,
			SourceCode:      p.opts.SourceCode,
			StartAt:         item.StartAt,
			EndAt:           item.EndAt,
			RawTitle:        item.RawTitle,
			NormalizedTitle: normalized,
			Category:        normalize.Category(item.RawTitle),
			ProductURL:      item.ProductURL,
			LiveURL:         item.LiveURL,
			SalePrice:       prices.Sale,
			OriginalPrice:   prices.Original,
			DiscountRate:    discount,
			PriceText:       item.PriceText,
			ImageURL:        item.ImageURL,
			Status:          storage.ComputeStatus(item.StartAt, item.EndAt, now),
			SlotHash:        hash,
		})
	}
	return slots
}

// resolvePrices combines the screen price text, the batch map and, when a
// side is still unknown, an item-level lookup.
func (p *Pipeline) resolvePrices(ctx context.Context, item schedule.Item, priceMap map[string]price.Prices, resolver PriceResolver) (price.Prices, *float64) {
	original, sale, _ := normalize.ParsePriceInfo(item.PriceText)
	prices := price.Prices{Original: original, Sale: sale}

	if item.ProductURL != "" {
		if mapped, ok := priceMap[item.ProductURL]; ok {
			prices = prices.Merge(mapped)
		}
		if resolver != nil && (prices.Original == nil || prices.Sale == nil) {
			if fetched, ok := resolver.Resolve(ctx, item.ProductURL); ok {
				prices = prices.MergeFetched(fetched)
			}
		}
	}
	return prices.Finalize()
}

func recordPriceHistory(ctx context.Context, w storage.SlotWriter, slot storage.Slot, now time.Time) error {
	last, ok, err := w.LatestPriceHistory(ctx, slot.ID)
	if err != nil {
		return err
	}
	if ok && last.SamePrices(slot.SalePrice, slot.OriginalPrice) {
		return nil
	}
	return w.InsertPriceHistory(ctx, storage.PriceHistory{
		SlotID:        slot.ID,
		CollectedAt:   now,
		SalePrice:     slot.SalePrice,
		OriginalPrice: slot.OriginalPrice,
		DiscountRate:  slot.DiscountRate,
	})
}
