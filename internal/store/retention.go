package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// pruneThrottle suppresses repeated prune runs within this window.
const pruneThrottle = 10 * time.Minute

// RetentionWindows carries the independently configurable window per tier.
type RetentionWindows struct {
	RawIntervals     time.Duration
	DailyAggregates  time.Duration
	WeeklyAggregates time.Duration
	RawNumeric       time.Duration
	HourlyNumeric    time.Duration
}

// PruneReport summarizes one retention pass.
type PruneReport struct {
	Skipped          bool
	RawIntervals     int64
	DailyAggregates  int64
	WeeklyAggregates int64
	RawNumeric       int64
	HourlyNumeric    int64
}

// Prune deletes rows aggregation failed to promote. Promotion is the
// normal path out of every tier once its retention window elapses;
// pruning is the backstop and only removes rows older than twice the
// window, so it never races a pending promotion. The run is idempotent
// and throttled: invocations within pruneThrottle of the previous run
// are skipped.
func (s *Store) Prune(ctx context.Context, now time.Time, windows RetentionWindows) (PruneReport, error) {
	var report PruneReport

	if last, ok, err := s.GetMetadata(ctx, "last_prune_ts"); err != nil {
		return report, err
	} else if ok {
		if ts, err := strconv.ParseInt(last, 10, 64); err == nil {
			if now.UTC().Sub(time.Unix(ts, 0).UTC()) < pruneThrottle {
				report.Skipped = true
				return report, nil
			}
		}
	}

	prune := func(query string, cutoff time.Time) (int64, error) {
		res, err := s.Exec(ctx, query, cutoff.UTC().Unix())
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	var err error
	if report.RawIntervals, err = prune(
		`DELETE FROM intervals WHERE end_ts < ?`, now.Add(-2*windows.RawIntervals)); err != nil {
		return report, fmt.Errorf("failed to prune raw intervals: %w", err)
	}
	if report.DailyAggregates, err = prune(
		`DELETE FROM interval_aggregates WHERE period = 'daily' AND period_end < ?`,
		now.Add(-2*windows.DailyAggregates)); err != nil {
		return report, fmt.Errorf("failed to prune daily aggregates: %w", err)
	}
	if report.WeeklyAggregates, err = prune(
		`DELETE FROM interval_aggregates WHERE period = 'weekly' AND period_end < ?`,
		now.Add(-2*windows.WeeklyAggregates)); err != nil {
		return report, fmt.Errorf("failed to prune weekly aggregates: %w", err)
	}
	if report.RawNumeric, err = prune(
		`DELETE FROM numeric_samples WHERE ts < ?`, now.Add(-2*windows.RawNumeric)); err != nil {
		return report, fmt.Errorf("failed to prune numeric samples: %w", err)
	}
	if report.HourlyNumeric, err = prune(
		`DELETE FROM numeric_aggregates WHERE period = 'hourly' AND period_end < ?`,
		now.Add(-2*windows.HourlyNumeric)); err != nil {
		return report, fmt.Errorf("failed to prune hourly aggregates: %w", err)
	}

	if err := s.SetMetadata(ctx, "last_prune_ts", strconv.FormatInt(now.UTC().Unix(), 10)); err != nil {
		return report, err
	}
	return report, nil
}
