package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	insertSlotSQL = `INSERT INTO broadcast_slots (
        channel_id,
        source_code,
        start_at,
        end_at,
        raw_title,
        normalized_title,
        category,
        product_url,
        live_url,
        sale_price,
        original_price,
        discount_rate,
        price_text,
        image_url,
        status,
        slot_hash
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    )
    RETURNING id;`

	updateSlotSQL = `UPDATE broadcast_slots
    SET
        end_at           = $2,
        raw_title        = $3,
        normalized_title = $4,
        category         = $5,
        product_url      = $6,
        live_url         = $7,
        sale_price       = $8,
        original_price   = $9,
        discount_rate    = $10,
        price_text       = $11,
        image_url        = $12,
        status           = $13
    WHERE id = $1;`

	latestPriceHistorySQL = `SELECT
        id, broadcast_slot_id, collected_at, sale_price, original_price, discount_rate
    FROM broadcast_price_history
    WHERE broadcast_slot_id = $1
    ORDER BY collected_at DESC, id DESC
    LIMIT 1;`

	insertPriceHistorySQL = `INSERT INTO broadcast_price_history (
        broadcast_slot_id,
        collected_at,
        sale_price,
        original_price,
        discount_rate
    ) VALUES (
        $1,$2,$3,$4,$5
    );`
)

// SlotWriter is the transactional view used to upsert slots and append history.
type SlotWriter interface {
	FindSlotByHash(ctx context.Context, hash string) (Slot, bool, error)
	InsertSlot(ctx context.Context, slot *Slot) error
	UpdateSlot(ctx context.Context, slot Slot) error
	LatestPriceHistory(ctx context.Context, slotID int64) (PriceHistory, bool, error)
	InsertPriceHistory(ctx context.Context, h PriceHistory) error
}

// InTx runs fn inside one transaction; any error rolls every write back.
func (s *Store) InTx(ctx context.Context, fn func(SlotWriter) error) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return fn(&txWriter{tx: tx})
	})
}

type txWriter struct {
	tx pgx.Tx
}

func (w *txWriter) FindSlotByHash(ctx context.Context, hash string) (Slot, bool, error) {
	slot, err := scanSlot(w.tx.QueryRow(ctx, findSlotByHashSQL, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("find slot by hash: %w", err)
	}
	return slot, true, nil
}

func (w *txWriter) InsertSlot(ctx context.Context, slot *Slot) error {
	row := w.tx.QueryRow(ctx, insertSlotSQL,
		slot.ChannelID,
		slot.SourceCode,
		slot.StartAt,
		slot.EndAt,
		slot.RawTitle,
		slot.NormalizedTitle,
		nullText(slot.Category),
		nullText(slot.ProductURL),
		nullText(slot.LiveURL),
		slot.SalePrice,
		slot.OriginalPrice,
		slot.DiscountRate,
		nullText(slot.PriceText),
		nullText(slot.ImageURL),
		string(slot.Status),
		slot.SlotHash,
	)
	if err := row.Scan(&slot.ID); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (w *txWriter) UpdateSlot(ctx context.Context, slot Slot) error {
	_, err := w.tx.Exec(ctx, updateSlotSQL,
		slot.ID,
		slot.EndAt,
		slot.RawTitle,
		slot.NormalizedTitle,
		nullText(slot.Category),
		nullText(slot.ProductURL),
		nullText(slot.LiveURL),
		slot.SalePrice,
		slot.OriginalPrice,
		slot.DiscountRate,
		nullText(slot.PriceText),
		nullText(slot.ImageURL),
		string(slot.Status),
	)
	if err != nil {
		return fmt.Errorf("update slot %d: %w", slot.ID, err)
	}
	return nil
}

func (w *txWriter) LatestPriceHistory(ctx context.Context, slotID int64) (PriceHistory, bool, error) {
	h, err := scanPriceHistory(w.tx.QueryRow(ctx, latestPriceHistorySQL, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceHistory{}, false, nil
	}
	if err != nil {
		return PriceHistory{}, false, fmt.Errorf("latest price history: %w", err)
	}
	return h, true, nil
}

func (w *txWriter) InsertPriceHistory(ctx context.Context, h PriceHistory) error {
	if _, err := w.tx.Exec(ctx, insertPriceHistorySQL,
		h.SlotID,
		h.CollectedAt,
		h.SalePrice,
		h.OriginalPrice,
		h.DiscountRate,
	); err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}
