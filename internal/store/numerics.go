package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NumericAggregationReport summarizes one numeric aggregation pass.
type NumericAggregationReport struct {
	HourlyCreated  int
	WeeklyCreated  int
	RawPromoted    int
	HourlyPromoted int
}

// InsertSample stores one numeric sensor reading. Duplicates (same
// entity, timestamp) are skipped.
func (s *Store) InsertSample(ctx context.Context, sample NumericSample) (bool, error) {
	res, err := s.Exec(ctx,
		`INSERT OR IGNORE INTO numeric_samples (entity, value, ts) VALUES (?, ?, ?)`,
		sample.Entity, sample.Value, sample.At.UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert sample for %s: %w", sample.Entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// SamplesForEntity returns raw samples for one entity in [from, to),
// ordered by timestamp.
func (s *Store) SamplesForEntity(ctx context.Context, entity string, from, to time.Time) ([]NumericSample, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, value, ts FROM numeric_samples
		 WHERE entity = ? AND ts >= ? AND ts < ? ORDER BY ts`,
		entity, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples for %s: %w", entity, err)
	}
	defer rows.Close()

	var samples []NumericSample
	for rows.Next() {
		var rec NumericSample
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.Value, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		rec.At = time.Unix(ts, 0).UTC()
		samples = append(samples, rec)
	}
	return samples, rows.Err()
}

// NumericAggregates returns aggregates for one entity and period kind,
// overlapping [from, to), ordered by period start.
func (s *Store) NumericAggregates(ctx context.Context, entity, period string, from, to time.Time) ([]NumericAggregate, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, period, period_start, period_end, sample_count,
		        min_value, max_value, avg_value, median_value, std_value, created_at
		 FROM numeric_aggregates
		 WHERE entity = ? AND period = ? AND period_end > ? AND period_start < ?
		 ORDER BY period_start`,
		entity, period, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query numeric aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []NumericAggregate
	for rows.Next() {
		var a NumericAggregate
		var periodStart, periodEnd, createdAt int64
		if err := rows.Scan(&a.ID, &a.Entity, &a.Period, &periodStart, &periodEnd,
			&a.SampleCount, &a.Min, &a.Max, &a.Avg, &a.Median, &a.Std, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan numeric aggregate: %w", err)
		}
		a.PeriodStart = time.Unix(periodStart, 0).UTC()
		a.PeriodEnd = time.Unix(periodEnd, 0).UTC()
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// AggregateNumeric runs one numeric promotion pass: raw samples older
// than the raw retention roll into hourly aggregates, hourly aggregates
// older than their retention roll into weekly ones. Aggregates created
// in this pass are excluded from the second stage.
func (s *Store) AggregateNumeric(ctx context.Context, now time.Time, loc *time.Location,
	rawRetention, hourlyRetention time.Duration) (NumericAggregationReport, error) {

	var report NumericAggregationReport

	created, promoted, err := s.promoteRawSamples(ctx, now.Add(-rawRetention), loc)
	if err != nil {
		return report, fmt.Errorf("raw sample promotion: %w", err)
	}
	report.HourlyCreated = len(created)
	report.RawPromoted = promoted

	weeklyCreated, promoted, err := s.promoteHourlyAggregates(ctx, now.Add(-hourlyRetention), loc, created)
	if err != nil {
		return report, fmt.Errorf("hourly aggregate promotion: %w", err)
	}
	report.WeeklyCreated = len(weeklyCreated)
	report.HourlyPromoted = promoted

	return report, nil
}

type numericGroupKey struct {
	Entity      string
	PeriodStart int64
}

func (s *Store) promoteRawSamples(ctx context.Context, cutoff time.Time, loc *time.Location) (map[int64]bool, int, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, value, ts FROM numeric_samples WHERE ts < ? ORDER BY entity, ts`,
		cutoff.UTC().Unix())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query promotable samples: %w", err)
	}

	type member struct {
		id    int64
		value float64
	}
	groups := make(map[numericGroupKey][]member)
	periodEnds := make(map[numericGroupKey]int64)

	for rows.Next() {
		var id, ts int64
		var entity string
		var value float64
		if err := rows.Scan(&id, &entity, &value, &ts); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan promotable sample: %w", err)
		}
		hourStart, hourEnd := hourBounds(time.Unix(ts, 0).In(loc))
		key := numericGroupKey{Entity: entity, PeriodStart: hourStart.Unix()}
		groups[key] = append(groups[key], member{id: id, value: value})
		periodEnds[key] = hourEnd.Unix()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	created := make(map[int64]bool)
	promoted := 0
	for key, members := range groups {
		values := make([]float64, len(members))
		ids := make([]int64, len(members))
		for i, m := range members {
			values[i] = m.value
			ids[i] = m.id
		}
		stats := summarize(values)

		var aggID int64
		err := s.Transaction(ctx, func(tx *sql.Tx) error {
			var err error
			aggID, err = upsertNumericAggregate(ctx, tx, key.Entity, "hourly",
				key.PeriodStart, periodEnds[key], stats)
			if err != nil {
				return err
			}
			return deleteRows(ctx, tx, "numeric_samples", ids)
		})
		if err != nil {
			return created, promoted, err
		}
		created[aggID] = true
		promoted += len(members)
	}
	return created, promoted, nil
}

func (s *Store) promoteHourlyAggregates(ctx context.Context, cutoff time.Time, loc *time.Location, exclude map[int64]bool) (map[int64]bool, int, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, period_start, sample_count, min_value, max_value,
		        avg_value, median_value, std_value
		 FROM numeric_aggregates WHERE period = 'hourly' AND period_end < ?
		 ORDER BY entity, period_start`, cutoff.UTC().Unix())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query hourly aggregates: %w", err)
	}

	type member struct {
		id    int64
		stats summary
	}
	groups := make(map[numericGroupKey][]member)
	periodEnds := make(map[numericGroupKey]int64)

	for rows.Next() {
		var id, periodStart int64
		var entity string
		var st summary
		if err := rows.Scan(&id, &entity, &periodStart, &st.Count, &st.Min, &st.Max,
			&st.Avg, &st.Median, &st.Std); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan hourly aggregate: %w", err)
		}
		if exclude[id] {
			continue
		}
		st.Total = st.Avg * float64(st.Count)

		weekStart, weekEnd := weekBounds(time.Unix(periodStart, 0).In(loc))
		key := numericGroupKey{Entity: entity, PeriodStart: weekStart.Unix()}
		groups[key] = append(groups[key], member{id: id, stats: st})
		periodEnds[key] = weekEnd.Unix()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	created := make(map[int64]bool)
	promoted := 0
	for key, members := range groups {
		parts := make([]summary, len(members))
		ids := make([]int64, len(members))
		for i, m := range members {
			parts[i] = m.stats
			ids[i] = m.id
		}
		stats := combine(parts)

		var aggID int64
		err := s.Transaction(ctx, func(tx *sql.Tx) error {
			var err error
			aggID, err = upsertNumericAggregate(ctx, tx, key.Entity, "weekly",
				key.PeriodStart, periodEnds[key], stats)
			if err != nil {
				return err
			}
			return deleteRows(ctx, tx, "numeric_aggregates", ids)
		})
		if err != nil {
			return created, promoted, err
		}
		created[aggID] = true
		promoted += len(members)
	}
	return created, promoted, nil
}

func upsertNumericAggregate(ctx context.Context, tx *sql.Tx, entity, period string,
	periodStart, periodEnd int64, stats summary) (int64, error) {

	var id int64
	var existing summary
	err := tx.QueryRowContext(ctx,
		`SELECT id, sample_count, min_value, max_value, avg_value, median_value, std_value
		 FROM numeric_aggregates WHERE entity = ? AND period = ? AND period_start = ?`,
		entity, period, periodStart).
		Scan(&id, &existing.Count, &existing.Min, &existing.Max,
			&existing.Avg, &existing.Median, &existing.Std)

	if err == nil {
		existing.Total = existing.Avg * float64(existing.Count)
		merged := combine([]summary{existing, stats})
		_, err = tx.ExecContext(ctx,
			`UPDATE numeric_aggregates
			 SET sample_count = ?, min_value = ?, max_value = ?, avg_value = ?,
			     median_value = ?, std_value = ?, period_end = ?
			 WHERE id = ?`,
			merged.Count, merged.Min, merged.Max, merged.Avg, merged.Median, merged.Std,
			periodEnd, id)
		if err != nil {
			return 0, fmt.Errorf("failed to merge %s numeric aggregate: %w", period, err)
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read %s numeric aggregate: %w", period, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO numeric_aggregates (entity, period, period_start, period_end,
		     sample_count, min_value, max_value, avg_value, median_value, std_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entity, period, periodStart, periodEnd,
		stats.Count, stats.Min, stats.Max, stats.Avg, stats.Median, stats.Std,
		time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s numeric aggregate: %w", period, err)
	}
	return res.LastInsertId()
}
