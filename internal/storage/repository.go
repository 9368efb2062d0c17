package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	ensureChannelSQL = `INSERT INTO channels (
        channel_code,
        channel_name,
        channel_logo_url,
        channel_live_url,
        channel_stream_url
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (channel_code) DO UPDATE
    SET
        channel_logo_url   = COALESCE(EXCLUDED.channel_logo_url, channels.channel_logo_url),
        channel_live_url   = COALESCE(EXCLUDED.channel_live_url, channels.channel_live_url),
        channel_stream_url = COALESCE(EXCLUDED.channel_stream_url, channels.channel_stream_url)
    RETURNING id, channel_code, channel_name, channel_logo_url, channel_live_url, channel_stream_url;`

	listChannelsSQL = `SELECT
        id, channel_code, channel_name, channel_logo_url, channel_live_url, channel_stream_url
    FROM channels
    ORDER BY channel_code;`

	updateChannelStreamSQL = `UPDATE channels
    SET channel_stream_url = $2
    WHERE channel_code = $1;`

	channelIDsByCodesSQL = `SELECT id FROM channels WHERE channel_code = ANY($1);`

	slotColumns = `
        s.id,
        s.channel_id,
        c.channel_code,
        s.source_code,
        s.start_at,
        s.end_at,
        s.raw_title,
        s.normalized_title,
        s.category,
        s.product_url,
        s.live_url,
        s.sale_price,
        s.original_price,
        s.discount_rate,
        s.price_text,
        s.image_url,
        s.status,
        s.slot_hash`

	listRecentSlotsSQL = `SELECT` + slotColumns + `
    FROM broadcast_slots s
    JOIN channels c ON c.id = s.channel_id
    ORDER BY s.start_at DESC
    LIMIT $1;`

	getSlotSQL = `SELECT` + slotColumns + `
    FROM broadcast_slots s
    JOIN channels c ON c.id = s.channel_id
    WHERE s.id = $1;`

	findSlotByHashSQL = `SELECT` + slotColumns + `
    FROM broadcast_slots s
    JOIN channels c ON c.id = s.channel_id
    WHERE s.slot_hash = $1;`

	listUpcomingSlotsSQL = `SELECT` + slotColumns + `
    FROM broadcast_slots s
    JOIN channels c ON c.id = s.channel_id
    WHERE s.channel_id = ANY($1)
      AND s.start_at >= $2
      AND s.start_at <= $3
    ORDER BY s.start_at;`

	listPriceHistorySQL = `SELECT
        id, broadcast_slot_id, collected_at, sale_price, original_price, discount_rate
    FROM broadcast_price_history
    WHERE broadcast_slot_id = $1
    ORDER BY collected_at, id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ChannelStore defines channel persistence.
type ChannelStore interface {
	EnsureChannel(ctx context.Context, ch ChannelUpsert) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	UpdateChannelStream(ctx context.Context, code, streamURL string) (bool, error)
}

// SlotStore defines read access to slots and their price history.
type SlotStore interface {
	ListRecentSlots(ctx context.Context, limit int) ([]Slot, error)
	GetSlot(ctx context.Context, id int64) (Slot, error)
	ListPriceHistory(ctx context.Context, slotID int64) ([]PriceHistory, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to channels, slots, price history and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// EnsureChannel creates the channel on first sighting and refreshes its
// logo, live and stream URLs when new values are known. The name is kept.
func (s *Store) EnsureChannel(ctx context.Context, ch ChannelUpsert) (Channel, error) {
	pool, err := s.getPool()
	if err != nil {
		return Channel{}, err
	}

	row := pool.QueryRow(ctx, ensureChannelSQL,
		ch.Code,
		ch.Name,
		nullText(ch.LogoURL),
		nullText(ch.LiveURL),
		nullText(ch.StreamURL),
	)
	channel, err := scanChannel(row)
	if err != nil {
		return Channel{}, fmt.Errorf("ensure channel %s: %w", ch.Code, err)
	}
	return channel, nil
}

// ListChannels lists every channel ordered by code.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listChannelsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list channels: %w", queryErr)
	}
	defer rows.Close()

	channels := make([]Channel, 0)
	for rows.Next() {
		channel, scanErr := scanChannel(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		channels = append(channels, channel)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return channels, nil
}

// UpdateChannelStream sets the stream URL of an existing channel and reports
// whether the channel exists.
func (s *Store) UpdateChannelStream(ctx context.Context, code, streamURL string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, updateChannelStreamSQL, code, streamURL)
	if execErr != nil {
		return false, fmt.Errorf("update channel stream: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ChannelIDsByCodes resolves channel codes to ids; unknown codes are ignored.
func (s *Store) ChannelIDsByCodes(ctx context.Context, codes []string) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	rows, queryErr := pool.Query(ctx, channelIDsByCodesSQL, codes)
	if queryErr != nil {
		return nil, fmt.Errorf("channel ids by codes: %w", queryErr)
	}
	defer rows.Close()

	ids := make([]int64, 0, len(codes))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// ListRecentSlots lists slots ordered by descending start time.
func (s *Store) ListRecentSlots(ctx context.Context, limit int) ([]Slot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	return querySlots(ctx, pool, "list recent slots", listRecentSlotsSQL, limit)
}

// ListUpcomingSlots lists slots of the given channels starting within [from, to].
func (s *Store) ListUpcomingSlots(ctx context.Context, channelIDs []int64, from, to time.Time) ([]Slot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	return querySlots(ctx, pool, "list upcoming slots", listUpcomingSlotsSQL, channelIDs, from, to)
}

// GetSlot loads one slot; pgx.ErrNoRows is returned when it does not exist.
func (s *Store) GetSlot(ctx context.Context, id int64) (Slot, error) {
	pool, err := s.getPool()
	if err != nil {
		return Slot{}, err
	}
	slot, scanErr := scanSlot(pool.QueryRow(ctx, getSlotSQL, id))
	if scanErr != nil {
		return Slot{}, fmt.Errorf("get slot %d: %w", id, scanErr)
	}
	return slot, nil
}

// ListPriceHistory lists the price changes of a slot in collection order.
func (s *Store) ListPriceHistory(ctx context.Context, slotID int64) ([]PriceHistory, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPriceHistorySQL, slotID)
	if queryErr != nil {
		return nil, fmt.Errorf("list price history: %w", queryErr)
	}
	defer rows.Close()

	history := make([]PriceHistory, 0)
	for rows.Next() {
		h, scanErr := scanPriceHistory(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		history = append(history, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return history, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func querySlots(ctx context.Context, q querier, op, query string, args ...any) ([]Slot, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	slots := make([]Slot, 0)
	for rows.Next() {
		slot, scanErr := scanSlot(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: %w", op, scanErr)
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

func scanChannel(row pgx.Row) (Channel, error) {
	var (
		ch                          Channel
		logoURL, liveURL, streamURL sql.NullString
	)
	if err := row.Scan(&ch.ID, &ch.Code, &ch.Name, &logoURL, &liveURL, &streamURL); err != nil {
		return Channel{}, err
	}
	ch.LogoURL = logoURL.String
	ch.LiveURL = liveURL.String
	ch.StreamURL = streamURL.String
	return ch, nil
}

func scanSlot(row pgx.Row) (Slot, error) {
	var (
		slot                          Slot
		category, productURL, liveURL sql.NullString
		priceText, imageURL           sql.NullString
		salePrice, originalPrice      sql.NullInt64
		discountRate                  sql.NullFloat64
		status                        string
	)
	if err := row.Scan(
		&slot.ID,
		&slot.ChannelID,
		&slot.ChannelCode,
		&slot.SourceCode,
		&slot.StartAt,
		&slot.EndAt,
		&slot.RawTitle,
		&slot.NormalizedTitle,
		&category,
		&productURL,
		&liveURL,
		&salePrice,
		&originalPrice,
		&discountRate,
		&priceText,
		&imageURL,
		&status,
		&slot.SlotHash,
	); err != nil {
		return Slot{}, err
	}

	slot.StartAt = slot.StartAt.UTC()
	slot.EndAt = slot.EndAt.UTC()
	slot.Category = category.String
	slot.ProductURL = productURL.String
	slot.LiveURL = liveURL.String
	slot.SalePrice = int64Ptr(salePrice)
	slot.OriginalPrice = int64Ptr(originalPrice)
	slot.DiscountRate = float64Ptr(discountRate)
	slot.PriceText = priceText.String
	slot.ImageURL = imageURL.String
	slot.Status = Status(status)
	return slot, nil
}

func scanPriceHistory(row pgx.Row) (PriceHistory, error) {
	var (
		h                        PriceHistory
		salePrice, originalPrice sql.NullInt64
		discountRate             sql.NullFloat64
	)
	if err := row.Scan(&h.ID, &h.SlotID, &h.CollectedAt, &salePrice, &originalPrice, &discountRate); err != nil {
		return PriceHistory{}, err
	}
	h.CollectedAt = h.CollectedAt.UTC()
	h.SalePrice = int64Ptr(salePrice)
	h.OriginalPrice = int64Ptr(originalPrice)
	h.DiscountRate = float64Ptr(discountRate)
	return h, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}
