package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertSample_Deduplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sample := NumericSample{Entity: "sensor.temp", Value: 21.5, At: mkTime(16, 10, 0)}

	wrote, err := s.InsertSample(ctx, sample)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.InsertSample(ctx, sample)
	require.NoError(t, err)
	assert.False(t, wrote, "same entity and timestamp must be ignored")
}

func TestSamplesForEntity_WindowQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.InsertSample(ctx, NumericSample{
			Entity: "sensor.temp",
			Value:  20 + float64(i),
			At:     mkTime(16, 10, 0).Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	got, err := s.SamplesForEntity(ctx, "sensor.temp", mkTime(16, 10, 1), mkTime(16, 10, 4))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 21.0, got[0].Value)
	assert.Equal(t, 23.0, got[2].Value)
}

func TestAggregateNumeric_PromotesAndDeletes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	// Four old samples within one clock hour, one recent sample.
	oldHour := mkTime(17, 9, 0)
	for i, v := range []float64{20, 21, 22, 23} {
		_, err := s.InsertSample(ctx, NumericSample{
			Entity: "sensor.temp", Value: v,
			At: oldHour.Add(time.Duration(i*10) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.InsertSample(ctx, NumericSample{
		Entity: "sensor.temp", Value: 25, At: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	report, err := s.AggregateNumeric(ctx, now, time.UTC, 48*time.Hour, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, report.RawPromoted)
	assert.Equal(t, 1, report.HourlyCreated)

	remaining, err := s.SamplesForEntity(ctx, "sensor.temp", mkTime(1, 0, 0), now)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "promoted raw samples must be deleted")

	aggs, err := s.NumericAggregates(ctx, "sensor.temp", "hourly", mkTime(1, 0, 0), now)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 4, aggs[0].SampleCount)
	assert.Equal(t, 20.0, aggs[0].Min)
	assert.Equal(t, 23.0, aggs[0].Max)
	assert.InDelta(t, 21.5, aggs[0].Avg, 1e-9)
}

func TestAggregateNumeric_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	_, err := s.InsertSample(ctx, NumericSample{
		Entity: "sensor.temp", Value: 21, At: mkTime(17, 9, 0),
	})
	require.NoError(t, err)

	first, err := s.AggregateNumeric(ctx, now, time.UTC, 48*time.Hour, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, first.RawPromoted)

	second, err := s.AggregateNumeric(ctx, now, time.UTC, 48*time.Hour, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, second.RawPromoted)
	assert.Zero(t, second.HourlyCreated)
	assert.Zero(t, second.WeeklyCreated)
}

func TestAggregateNumeric_SamePassExclusion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := mkTime(20, 12, 0)

	// Old enough for both tiers, but the hourly aggregate is created
	// in this pass and must wait for the next one.
	_, err := s.InsertSample(ctx, NumericSample{
		Entity: "sensor.temp", Value: 21, At: now.Add(-100 * 24 * time.Hour),
	})
	require.NoError(t, err)

	first, err := s.AggregateNumeric(ctx, now, time.UTC, 48*time.Hour, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, first.HourlyCreated)
	assert.Zero(t, first.WeeklyCreated)

	second, err := s.AggregateNumeric(ctx, now, time.UTC, 48*time.Hour, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, second.WeeklyCreated)
	assert.Equal(t, 1, second.HourlyPromoted)
}
