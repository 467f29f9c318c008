package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// Intervals outside these bounds are noise (sensor flapping) or
	// stuck reporters and are excluded from learning.
	minIntervalDuration = 5 * time.Second
	maxIntervalDuration = 13 * time.Hour
)

// invalidStates are reported states that carry no evidence.
var invalidStates = map[string]bool{
	"":            true,
	"unknown":     true,
	"unavailable": true,
}

// ValidInterval reports whether an interval is eligible for storage.
func ValidInterval(iv Interval) bool {
	if invalidStates[iv.State] {
		return false
	}
	d := iv.End.Sub(iv.Start)
	return d >= minIntervalDuration && d <= maxIntervalDuration
}

// InsertInterval stores one raw state interval. Invalid intervals and
// duplicates (same entity, start, end) are skipped; the return value
// reports whether a row was written.
func (s *Store) InsertInterval(ctx context.Context, iv Interval) (bool, error) {
	if !ValidInterval(iv) {
		return false, nil
	}

	duration := iv.End.Sub(iv.Start).Seconds()
	res, err := s.Exec(ctx,
		`INSERT OR IGNORE INTO intervals (entity, state, start_ts, end_ts, duration_sec, aggregation_level)
		 VALUES (?, ?, ?, ?, ?, 'raw')`,
		iv.Entity, iv.State, iv.Start.UTC().Unix(), iv.End.UTC().Unix(), duration)
	if err != nil {
		return false, fmt.Errorf("failed to insert interval for %s: %w", iv.Entity, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// SyncIntervals stores a batch of raw intervals and returns the number
// written (invalid and duplicate intervals are dropped silently).
func (s *Store) SyncIntervals(ctx context.Context, intervals []Interval) (int, error) {
	inserted := 0
	for _, iv := range intervals {
		ok, err := s.InsertInterval(ctx, iv)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// IntervalsForEntity returns raw intervals for one entity overlapping
// [from, to), ordered by start.
func (s *Store) IntervalsForEntity(ctx context.Context, entity string, from, to time.Time) ([]Interval, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, state, start_ts, end_ts FROM intervals
		 WHERE aggregation_level = 'raw' AND entity = ? AND end_ts > ? AND start_ts < ?
		 ORDER BY start_ts`,
		entity, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals for %s: %w", entity, err)
	}
	defer rows.Close()
	return scanIntervals(rows)
}

// ActiveIntervals returns intervals for one entity in any of the given
// states, overlapping [from, to), ordered by start.
func (s *Store) ActiveIntervals(ctx context.Context, entity string, states []string, from, to time.Time) ([]Interval, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := []interface{}{entity}
	for _, st := range states {
		args = append(args, st)
	}
	args = append(args, from.UTC().Unix(), to.UTC().Unix())

	rows, err := s.Query(ctx, fmt.Sprintf(
		`SELECT id, entity, state, start_ts, end_ts FROM intervals
		 WHERE aggregation_level = 'raw' AND entity = ? AND state IN (%s)
		   AND end_ts > ? AND start_ts < ?
		 ORDER BY start_ts`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active intervals for %s: %w", entity, err)
	}
	defer rows.Close()
	return scanIntervals(rows)
}

// MotionIntervals returns active motion intervals across a set of
// motion entities, overlapping [from, to), ordered by start.
func (s *Store) MotionIntervals(ctx context.Context, entities []string, states []string, from, to time.Time) ([]Interval, error) {
	var all []Interval
	for _, entity := range entities {
		ivs, err := s.ActiveIntervals(ctx, entity, states, from, to)
		if err != nil {
			return nil, err
		}
		all = append(all, ivs...)
	}
	return all, nil
}

func scanIntervals(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]Interval, error) {
	var intervals []Interval
	for rows.Next() {
		var iv Interval
		var start, end int64
		if err := rows.Scan(&iv.ID, &iv.Entity, &iv.State, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		iv.Start = time.Unix(start, 0).UTC()
		iv.End = time.Unix(end, 0).UTC()
		iv.Duration = iv.End.Sub(iv.Start)
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}
