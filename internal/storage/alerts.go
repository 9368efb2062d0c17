package storage

import (
	"context"
	"fmt"
)

const listActiveAlertsSQL = `SELECT
        id,
        alert_name,
        target_channel_codes,
        keyword_list,
        COALESCE(category_list, '[]'::jsonb),
        notify_before_minutes,
        destination_type,
        destination_value,
        is_active
    FROM alerts
    WHERE is_active
    ORDER BY id;`

// ListActiveAlerts lists enabled alert subscriptions.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var (
			a           Alert
			destination string
		)
		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.TargetChannelCodes,
			&a.Keywords,
			&a.Categories,
			&a.NotifyBeforeMinutes,
			&destination,
			&a.DestinationValue,
			&a.Active,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.DestinationType = DestinationType(destination)
		alerts = append(alerts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}
