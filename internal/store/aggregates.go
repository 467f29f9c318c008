package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tiered aggregation promotes rows strictly raw -> daily -> weekly ->
// monthly. Each promotion creates or merges the target aggregate and
// deletes its source rows in one transaction, so a partial failure
// never double counts. Aggregates created within the current pass are
// excluded from further promotion in the same pass.

// AggregationReport summarizes one interval aggregation pass.
type AggregationReport struct {
	DailyCreated   int
	WeeklyCreated  int
	MonthlyCreated int
	RawPromoted    int
	DailyPromoted  int
	WeeklyPromoted int
}

// AggregateIntervals runs one full interval promotion pass. Rows are
// eligible once they are older than the retention window of their tier.
// Wall-clock period boundaries use the given location.
func (s *Store) AggregateIntervals(ctx context.Context, now time.Time, loc *time.Location,
	rawRetention, dailyRetention, weeklyRetention time.Duration) (AggregationReport, error) {

	var report AggregationReport

	created, promoted, err := s.promoteRawIntervals(ctx, now.Add(-rawRetention), loc)
	if err != nil {
		return report, fmt.Errorf("raw interval promotion: %w", err)
	}
	report.DailyCreated = len(created)
	report.RawPromoted = promoted

	weeklyCreated, promoted, err := s.promoteIntervalAggregates(ctx, "daily", "weekly",
		now.Add(-dailyRetention), loc, created)
	if err != nil {
		return report, fmt.Errorf("daily aggregate promotion: %w", err)
	}
	report.WeeklyCreated = len(weeklyCreated)
	report.DailyPromoted = promoted

	monthlyCreated, promoted, err := s.promoteIntervalAggregates(ctx, "weekly", "monthly",
		now.Add(-weeklyRetention), loc, weeklyCreated)
	if err != nil {
		return report, fmt.Errorf("weekly aggregate promotion: %w", err)
	}
	report.MonthlyCreated = len(monthlyCreated)
	report.WeeklyPromoted = promoted

	return report, nil
}

type intervalGroupKey struct {
	Entity      string
	State       string
	PeriodStart int64
}

// promoteRawIntervals rolls raw intervals that ended before cutoff into
// daily aggregates. Returns the ids of aggregates created or merged and
// the number of raw rows promoted.
func (s *Store) promoteRawIntervals(ctx context.Context, cutoff time.Time, loc *time.Location) (map[int64]bool, int, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, state, start_ts, end_ts, duration_sec FROM intervals
		 WHERE aggregation_level = 'raw' AND end_ts < ?
		 ORDER BY entity, state, start_ts`, cutoff.UTC().Unix())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query promotable intervals: %w", err)
	}

	type member struct {
		id       int64
		duration float64
	}
	groups := make(map[intervalGroupKey][]member)
	periodEnds := make(map[intervalGroupKey]int64)

	for rows.Next() {
		var id, start, end int64
		var entity, state string
		var duration float64
		if err := rows.Scan(&id, &entity, &state, &start, &end, &duration); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan promotable interval: %w", err)
		}

		dayStart, dayEnd := dayBounds(time.Unix(start, 0).In(loc))
		key := intervalGroupKey{Entity: entity, State: state, PeriodStart: dayStart.Unix()}
		groups[key] = append(groups[key], member{id: id, duration: duration})
		periodEnds[key] = dayEnd.Unix()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	created := make(map[int64]bool)
	promoted := 0
	for key, members := range groups {
		durations := make([]float64, len(members))
		ids := make([]int64, len(members))
		for i, m := range members {
			durations[i] = m.duration
			ids[i] = m.id
		}
		stats := summarize(durations)

		var aggID int64
		err := s.Transaction(ctx, func(tx *sql.Tx) error {
			var err error
			aggID, err = upsertIntervalAggregate(ctx, tx, key.Entity, key.State, "daily",
				key.PeriodStart, periodEnds[key], stats)
			if err != nil {
				return err
			}
			return deleteRows(ctx, tx, "intervals", ids)
		})
		if err != nil {
			return created, promoted, err
		}
		created[aggID] = true
		promoted += len(members)
	}
	return created, promoted, nil
}

// promoteIntervalAggregates rolls aggregates of one tier into the next
// coarser tier. Aggregates listed in exclude (created earlier in the
// same pass) are left alone.
func (s *Store) promoteIntervalAggregates(ctx context.Context, fromPeriod, toPeriod string,
	cutoff time.Time, loc *time.Location, exclude map[int64]bool) (map[int64]bool, int, error) {

	rows, err := s.Query(ctx,
		`SELECT id, entity, state, period_start, interval_count, total_duration_sec,
		        min_duration_sec, max_duration_sec, avg_duration_sec,
		        median_duration_sec, std_duration_sec
		 FROM interval_aggregates
		 WHERE period = ? AND period_end < ?
		 ORDER BY entity, state, period_start`, fromPeriod, cutoff.UTC().Unix())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query %s aggregates: %w", fromPeriod, err)
	}

	type member struct {
		id    int64
		stats summary
	}
	groups := make(map[intervalGroupKey][]member)
	periodEnds := make(map[intervalGroupKey]int64)

	for rows.Next() {
		var id, periodStart int64
		var entity, state string
		var st summary
		if err := rows.Scan(&id, &entity, &state, &periodStart, &st.Count, &st.Total,
			&st.Min, &st.Max, &st.Avg, &st.Median, &st.Std); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan %s aggregate: %w", fromPeriod, err)
		}
		if exclude[id] {
			continue
		}

		var bucketStart, bucketEnd time.Time
		if toPeriod == "weekly" {
			bucketStart, bucketEnd = weekBounds(time.Unix(periodStart, 0).In(loc))
		} else {
			bucketStart, bucketEnd = monthBounds(time.Unix(periodStart, 0).In(loc))
		}
		key := intervalGroupKey{Entity: entity, State: state, PeriodStart: bucketStart.Unix()}
		groups[key] = append(groups[key], member{id: id, stats: st})
		periodEnds[key] = bucketEnd.Unix()
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
			aggID, err = upsertIntervalAggregate(ctx, tx, key.Entity, key.State, toPeriod,
				key.PeriodStart, periodEnds[key], stats)
			if err != nil {
				return err
			}
			return deleteRows(ctx, tx, "interval_aggregates", ids)
		})
		if err != nil {
			return created, promoted, err
		}
		created[aggID] = true
		promoted += len(members)
	}
	return created, promoted, nil
}

// upsertIntervalAggregate creates the aggregate row or merges the new
// statistics into an existing row for the same period.
func upsertIntervalAggregate(ctx context.Context, tx *sql.Tx, entity, state, period string,
	periodStart, periodEnd int64, stats summary) (int64, error) {

	var id int64
	var existing summary
	err := tx.QueryRowContext(ctx,
		`SELECT id, interval_count, total_duration_sec, min_duration_sec, max_duration_sec,
		        avg_duration_sec, median_duration_sec, std_duration_sec
		 FROM interval_aggregates
		 WHERE entity = ? AND state = ? AND period = ? AND period_start = ?`,
		entity, state, period, periodStart).
		Scan(&id, &existing.Count, &existing.Total, &existing.Min, &existing.Max,
			&existing.Avg, &existing.Median, &existing.Std)

	if err == nil {
		merged := combine([]summary{existing, stats})
		_, err = tx.ExecContext(ctx,
			`UPDATE interval_aggregates
			 SET interval_count = ?, total_duration_sec = ?, min_duration_sec = ?,
			     max_duration_sec = ?, avg_duration_sec = ?, median_duration_sec = ?,
			     std_duration_sec = ?, period_end = ?
			 WHERE id = ?`,
			merged.Count, merged.Total, merged.Min, merged.Max, merged.Avg,
			merged.Median, merged.Std, periodEnd, id)
		if err != nil {
			return 0, fmt.Errorf("failed to merge %s aggregate: %w", period, err)
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read %s aggregate: %w", period, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO interval_aggregates (entity, state, period, period_start, period_end,
		     interval_count, total_duration_sec, min_duration_sec, max_duration_sec,
		     avg_duration_sec, median_duration_sec, std_duration_sec, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entity, state, period, periodStart, periodEnd,
		stats.Count, stats.Total, stats.Min, stats.Max,
		stats.Avg, stats.Median, stats.Std, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s aggregate: %w", period, err)
	}
	return res.LastInsertId()
}

// IntervalAggregates returns aggregates for one entity and period kind,
// overlapping [from, to), ordered by period start.
func (s *Store) IntervalAggregates(ctx context.Context, entity, period string, from, to time.Time) ([]IntervalAggregate, error) {
	rows, err := s.Query(ctx,
		`SELECT id, entity, state, period, period_start, period_end, interval_count,
		        total_duration_sec, min_duration_sec, max_duration_sec, avg_duration_sec,
		        median_duration_sec, std_duration_sec, created_at
		 FROM interval_aggregates
		 WHERE entity = ? AND period = ? AND period_end > ? AND period_start < ?
		 ORDER BY period_start`,
		entity, period, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query interval aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []IntervalAggregate
	for rows.Next() {
		var a IntervalAggregate
		var periodStart, periodEnd, createdAt int64
		var total, min, max, avg, median, std float64
		if err := rows.Scan(&a.ID, &a.Entity, &a.State, &a.Period, &periodStart, &periodEnd,
			&a.IntervalCount, &total, &min, &max, &avg, &median, &std, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan interval aggregate: %w", err)
		}
		a.PeriodStart = time.Unix(periodStart, 0).UTC()
		a.PeriodEnd = time.Unix(periodEnd, 0).UTC()
		a.TotalDuration = secondsToDuration(total)
		a.MinDuration = secondsToDuration(min)
		a.MaxDuration = secondsToDuration(max)
		a.AvgDuration = secondsToDuration(avg)
		a.MedianDuration = secondsToDuration(median)
		a.StdDuration = secondsToDuration(std)
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func deleteRows(ctx context.Context, tx *sql.Tx, table string, ids []int64) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

// dayBounds returns the local calendar day containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// weekBounds returns the local ISO week (Monday start) containing t.
func weekBounds(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// monthBounds returns the local calendar month containing t.
func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// hourBounds returns the local clock hour containing t.
func hourBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return start, start.Add(time.Hour)
}
