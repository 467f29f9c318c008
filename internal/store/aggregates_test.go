package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertRaw(t *testing.T, s *Store, entity, state string, start time.Time, d time.Duration) {
	t.Helper()
	wrote, err := s.InsertInterval(context.Background(), Interval{
		Entity: entity, State: state, Start: start, End: start.Add(d),
	})
	require.NoError(t, err)
	require.True(t, wrote)
}

func TestAggregateIntervals_PromotesOldRaw(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	// Three raw intervals on the same old day, one recent.
	old := now.Add(-72 * time.Hour)
	insertRaw(t, s, "m1", "on", old, time.Minute)
	insertRaw(t, s, "m1", "on", old.Add(time.Hour), 2*time.Minute)
	insertRaw(t, s, "m1", "on", old.Add(2*time.Hour), 3*time.Minute)
	insertRaw(t, s, "m1", "on", now.Add(-time.Hour), time.Minute)

	report, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RawPromoted)
	assert.Equal(t, 1, report.DailyCreated)

	// Promoted raw rows are gone, the recent one stays.
	remaining, err := s.IntervalsForEntity(ctx, "m1", now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	aggs, err := s.IntervalAggregates(ctx, "m1", "daily", now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 3, aggs[0].IntervalCount)
	assert.Equal(t, 6*time.Minute, aggs[0].TotalDuration)
	assert.Equal(t, time.Minute, aggs[0].MinDuration)
	assert.Equal(t, 3*time.Minute, aggs[0].MaxDuration)
	assert.Equal(t, 2*time.Minute, aggs[0].AvgDuration)
}

func TestAggregateIntervals_SkipsNonRawRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	old := now.Add(-72 * time.Hour)
	insertRaw(t, s, "m1", "on", old, time.Minute)

	// A row already marked as promoted must not feed the aggregator
	// or the raw read paths again.
	_, err := s.Exec(ctx,
		`INSERT INTO intervals (entity, state, start_ts, end_ts, duration_sec, aggregation_level)
		 VALUES (?, ?, ?, ?, ?, 'daily')`,
		"m1", "on", old.Add(2*time.Hour).Unix(), old.Add(2*time.Hour+time.Minute).Unix(), 60.0)
	require.NoError(t, err)

	visible, err := s.IntervalsForEntity(ctx, "m1", now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, visible, 1, "non-raw rows are invisible to raw reads")

	active, err := s.ActiveIntervals(ctx, "m1", []string{"on"}, now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	report, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RawPromoted)
}

func TestAggregateIntervals_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	old := now.Add(-72 * time.Hour)
	insertRaw(t, s, "m1", "on", old, time.Minute)
	insertRaw(t, s, "m1", "on", old.Add(time.Hour), time.Minute)

	first, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, first.RawPromoted)

	// The second run has nothing left to promote.
	second, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, second.RawPromoted)
	assert.Zero(t, second.DailyCreated)
	assert.Zero(t, second.WeeklyCreated)
	assert.Zero(t, second.MonthlyCreated)
}

func TestAggregateIntervals_FreshDailySkipsWeekly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	// Raw old enough for daily promotion but the daily tier's own
	// window has not elapsed: the new daily aggregate must not cascade
	// to weekly within the same pass.
	old := now.Add(-100 * 24 * time.Hour)
	insertRaw(t, s, "m1", "on", old, time.Minute)

	report, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DailyCreated)
	assert.Zero(t, report.WeeklyCreated, "same-pass aggregate must not cascade")

	// The next pass may promote it.
	second, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, second.WeeklyCreated)
	assert.Equal(t, 1, second.DailyPromoted)
}

func TestAggregateIntervals_MergesIntoExistingAggregate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	old := now.Add(-72 * time.Hour)
	insertRaw(t, s, "m1", "on", old, time.Minute)

	_, err := s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)

	// A late-arriving raw row on the same day merges into the
	// existing daily aggregate instead of duplicating it.
	insertRaw(t, s, "m1", "on", old.Add(30*time.Minute), 3*time.Minute)
	_, err = s.AggregateIntervals(ctx, now, time.UTC,
		48*time.Hour, 60*24*time.Hour, 365*24*time.Hour)
	require.NoError(t, err)

	aggs, err := s.IntervalAggregates(ctx, "m1", "daily", now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 2, aggs[0].IntervalCount)
	assert.Equal(t, 4*time.Minute, aggs[0].TotalDuration)
}

func TestSummarize(t *testing.T) {
	got := summarize([]float64{60, 120, 180})

	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 360.0, got.Total)
	assert.Equal(t, 60.0, got.Min)
	assert.Equal(t, 180.0, got.Max)
	assert.Equal(t, 120.0, got.Avg)
	assert.Equal(t, 120.0, got.Median)
	assert.InDelta(t, 48.99, got.Std, 0.01)
}

func TestCombine(t *testing.T) {
	a := summarize([]float64{60, 120})
	b := summarize([]float64{180, 240})

	got := combine([]summary{a, b})

	assert.Equal(t, 4, got.Count)
	assert.Equal(t, 600.0, got.Total)
	assert.Equal(t, 60.0, got.Min)
	assert.Equal(t, 240.0, got.Max)
	assert.Equal(t, 150.0, got.Avg)
	// Median and std are count-weighted blends of the parts.
	assert.Equal(t, 150.0, got.Median)
}

func TestCombine_Empty(t *testing.T) {
	assert.Equal(t, summary{}, combine(nil))
	assert.Equal(t, summary{}, combine([]summary{{}}))
}
