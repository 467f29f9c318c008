package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// The occupied-interval cache holds the merged, timeout-extended
// motion intervals every learner reads. It is replaced wholesale per
// area and considered stale after a TTL.

// ReplaceOccupiedIntervals replaces the cached occupied intervals for
// an area in a single transaction.
func (s *Store) ReplaceOccupiedIntervals(ctx context.Context, areaID int64, intervals []OccupiedInterval, computedAt time.Time) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM occupied_cache WHERE area_id = ?`, areaID); err != nil {
			return fmt.Errorf("failed to clear occupied cache: %w", err)
		}
		at := computedAt.UTC().Unix()
		for _, iv := range intervals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO occupied_cache (area_id, start_ts, end_ts, computed_at) VALUES (?, ?, ?, ?)`,
				areaID, iv.Start.UTC().Unix(), iv.End.UTC().Unix(), at); err != nil {
				return fmt.Errorf("failed to insert occupied interval: %w", err)
			}
		}
		return nil
	})
}

// OccupiedIntervals returns the cached occupied intervals for an area,
// ordered by start.
func (s *Store) OccupiedIntervals(ctx context.Context, areaID int64) ([]OccupiedInterval, error) {
	rows, err := s.Query(ctx,
		`SELECT start_ts, end_ts FROM occupied_cache WHERE area_id = ? ORDER BY start_ts`, areaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query occupied cache: %w", err)
	}
	defer rows.Close()

	var intervals []OccupiedInterval
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan occupied interval: %w", err)
		}
		intervals = append(intervals, OccupiedInterval{
			Start: time.Unix(start, 0).UTC(),
			End:   time.Unix(end, 0).UTC(),
		})
	}
	return intervals, rows.Err()
}

// OccupiedCacheFresh reports whether the cache for an area was computed
// within the given TTL. An empty cache is never fresh.
func (s *Store) OccupiedCacheFresh(ctx context.Context, areaID int64, ttl time.Duration, now time.Time) (bool, error) {
	var computedAt int64
	err := s.QueryRow(ctx,
		`SELECT MAX(computed_at) FROM occupied_cache WHERE area_id = ?`, areaID).Scan(&computedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		// MAX over zero rows yields NULL, which Scan reports as an error.
		return false, nil
	}
	return now.UTC().Sub(time.Unix(computedAt, 0).UTC()) < ttl, nil
}
