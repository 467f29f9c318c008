package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// globalPriorRunHistory bounds the per-area audit trail of prior
// computations.
const globalPriorRunHistory = 50

// SaveGlobalPrior supersedes the current global prior for an area and
// appends a run record to the bounded audit trail.
func (s *Store) SaveGlobalPrior(ctx context.Context, prior GlobalPrior) error {
	runID := uuid.NewString()
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO global_priors (area_id, value, period_start, period_end, sample_duration_sec, interval_count, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(area_id) DO UPDATE SET
			     value = excluded.value,
			     period_start = excluded.period_start,
			     period_end = excluded.period_end,
			     sample_duration_sec = excluded.sample_duration_sec,
			     interval_count = excluded.interval_count,
			     computed_at = excluded.computed_at`,
			prior.AreaID, prior.Value,
			prior.PeriodStart.UTC().Unix(), prior.PeriodEnd.UTC().Unix(),
			prior.SampleDuration.Seconds(), prior.IntervalCount,
			prior.ComputedAt.UTC().Unix())
		if err != nil {
			return fmt.Errorf("failed to save global prior: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO global_prior_runs (run_id, area_id, value, period_start, period_end, sample_duration_sec, interval_count, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, prior.AreaID, prior.Value,
			prior.PeriodStart.UTC().Unix(), prior.PeriodEnd.UTC().Unix(),
			prior.SampleDuration.Seconds(), prior.IntervalCount,
			prior.ComputedAt.UTC().Unix())
		if err != nil {
			return fmt.Errorf("failed to record prior run: %w", err)
		}

		// Trim the audit trail to the most recent rows.
		_, err = tx.ExecContext(ctx,
			`DELETE FROM global_prior_runs WHERE area_id = ? AND id NOT IN (
			     SELECT id FROM global_prior_runs WHERE area_id = ?
			     ORDER BY computed_at DESC, id DESC LIMIT ?)`,
			prior.AreaID, prior.AreaID, globalPriorRunHistory)
		if err != nil {
			return fmt.Errorf("failed to trim prior run history: %w", err)
		}
		return nil
	})
}

// GlobalPriorForArea returns the current global prior, or ok=false when
// none has been computed yet.
func (s *Store) GlobalPriorForArea(ctx context.Context, areaID int64) (GlobalPrior, bool, error) {
	var prior GlobalPrior
	var periodStart, periodEnd, computedAt int64
	var sampleSec float64
	err := s.QueryRow(ctx,
		`SELECT area_id, value, period_start, period_end, sample_duration_sec, interval_count, computed_at
		 FROM global_priors WHERE area_id = ?`, areaID).
		Scan(&prior.AreaID, &prior.Value, &periodStart, &periodEnd, &sampleSec, &prior.IntervalCount, &computedAt)
	if err == sql.ErrNoRows {
		return GlobalPrior{}, false, nil
	}
	if err != nil {
		return GlobalPrior{}, false, fmt.Errorf("failed to read global prior: %w", err)
	}

	prior.PeriodStart = time.Unix(periodStart, 0).UTC()
	prior.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	prior.SampleDuration = secondsToDuration(sampleSec)
	prior.ComputedAt = time.Unix(computedAt, 0).UTC()
	return prior, true, nil
}

// SaveTimePriors replaces all time-of-day priors for an area. Buckets
// without data are not stored; consumers default them to 0.5 on read.
func (s *Store) SaveTimePriors(ctx context.Context, areaID int64, priors []TimePrior) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM time_priors WHERE area_id = ?`, areaID); err != nil {
			return fmt.Errorf("failed to clear time priors: %w", err)
		}
		for _, p := range priors {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO time_priors (area_id, day_of_week, hour, value, weeks_of_data, computed_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				areaID, p.DayOfWeek, p.Hour, p.Value, p.WeeksOfData, p.ComputedAt.UTC().Unix())
			if err != nil {
				return fmt.Errorf("failed to insert time prior: %w", err)
			}
		}
		return nil
	})
}

// TimePriorsForArea returns all 168 buckets for an area. Buckets with
// no stored prior default to 0.5 with zero weeks of data.
func (s *Store) TimePriorsForArea(ctx context.Context, areaID int64) (map[int]TimePrior, error) {
	priors := make(map[int]TimePrior, 168)
	for dow := 0; dow < 7; dow++ {
		for hour := 0; hour < 24; hour++ {
			priors[dow*24+hour] = TimePrior{
				AreaID: areaID, DayOfWeek: dow, Hour: hour, Value: 0.5,
			}
		}
	}

	rows, err := s.Query(ctx,
		`SELECT day_of_week, hour, value, weeks_of_data, computed_at
		 FROM time_priors WHERE area_id = ?`, areaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time priors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p TimePrior
		var computedAt int64
		if err := rows.Scan(&p.DayOfWeek, &p.Hour, &p.Value, &p.WeeksOfData, &computedAt); err != nil {
			return nil, fmt.Errorf("failed to scan time prior: %w", err)
		}
		p.AreaID = areaID
		p.ComputedAt = time.Unix(computedAt, 0).UTC()
		priors[p.DayOfWeek*24+p.Hour] = p
	}
	return priors, rows.Err()
}
