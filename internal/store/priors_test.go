package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalPrior_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	_, ok, err := s.GlobalPriorForArea(ctx, areaID)
	require.NoError(t, err)
	assert.False(t, ok, "no prior before first save")

	saved := GlobalPrior{
		AreaID:         areaID,
		Value:          0.2375,
		PeriodStart:    mkTime(1, 0, 0),
		PeriodEnd:      mkTime(16, 0, 0),
		SampleDuration: 42 * time.Hour,
		IntervalCount:  17,
		ComputedAt:     mkTime(16, 1, 0),
	}
	require.NoError(t, s.SaveGlobalPrior(ctx, saved))

	got, ok, err := s.GlobalPriorForArea(ctx, areaID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, saved.Value, got.Value, 1e-9)
	assert.Equal(t, saved.PeriodStart, got.PeriodStart)
	assert.Equal(t, saved.PeriodEnd, got.PeriodEnd)
	assert.Equal(t, saved.IntervalCount, got.IntervalCount)
}

func TestGlobalPrior_SupersedesPrevious(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	first := GlobalPrior{AreaID: areaID, Value: 0.2,
		PeriodStart: mkTime(1, 0, 0), PeriodEnd: mkTime(15, 0, 0), ComputedAt: mkTime(15, 0, 0)}
	second := GlobalPrior{AreaID: areaID, Value: 0.3,
		PeriodStart: mkTime(1, 0, 0), PeriodEnd: mkTime(16, 0, 0), ComputedAt: mkTime(16, 0, 0)}

	require.NoError(t, s.SaveGlobalPrior(ctx, first))
	require.NoError(t, s.SaveGlobalPrior(ctx, second))

	got, ok, err := s.GlobalPriorForArea(ctx, areaID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.3, got.Value, 1e-9)

	// The audit trail keeps both runs.
	var runs int
	err = s.QueryRow(ctx, `SELECT COUNT(*) FROM global_prior_runs WHERE area_id = ?`, areaID).Scan(&runs)
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestGlobalPrior_AuditTrailBounded(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	for i := 0; i < globalPriorRunHistory+10; i++ {
		require.NoError(t, s.SaveGlobalPrior(ctx, GlobalPrior{
			AreaID:      areaID,
			Value:       0.2,
			PeriodStart: mkTime(1, 0, 0),
			PeriodEnd:   mkTime(16, 0, 0),
			ComputedAt:  mkTime(16, 0, 0).Add(time.Duration(i) * time.Minute),
		}))
	}

	var runs int
	err = s.QueryRow(ctx, `SELECT COUNT(*) FROM global_prior_runs WHERE area_id = ?`, areaID).Scan(&runs)
	require.NoError(t, err)
	assert.Equal(t, globalPriorRunHistory, runs)
}

func TestTimePriors_EmptyReadsAllDefaults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "bedroom", "sleeping", 0.5)
	require.NoError(t, err)

	priors, err := s.TimePriorsForArea(ctx, areaID)
	require.NoError(t, err)

	require.Len(t, priors, 168, "every day-of-week hour bucket present")
	for key, p := range priors {
		assert.Equal(t, 0.5, p.Value, "bucket %d must default to neutral", key)
		assert.Zero(t, p.WeeksOfData)
	}
}

func TestTimePriors_SavedBucketsOverrideDefaults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "bedroom", "sleeping", 0.5)
	require.NoError(t, err)

	saved := []TimePrior{
		{DayOfWeek: 1, Hour: 10, Value: 0.1, WeeksOfData: 4, ComputedAt: mkTime(16, 0, 0)},
		{DayOfWeek: 6, Hour: 23, Value: 0.85, WeeksOfData: 2, ComputedAt: mkTime(16, 0, 0)},
	}
	require.NoError(t, s.SaveTimePriors(ctx, areaID, saved))

	priors, err := s.TimePriorsForArea(ctx, areaID)
	require.NoError(t, err)
	require.Len(t, priors, 168)

	monday := priors[1*24+10]
	assert.InDelta(t, 0.1, monday.Value, 1e-9)
	assert.Equal(t, 4, monday.WeeksOfData)

	saturday := priors[6*24+23]
	assert.InDelta(t, 0.85, saturday.Value, 1e-9)

	// Unsaved buckets stay at the default.
	assert.Equal(t, 0.5, priors[0].Value)
}

func TestTimePriors_ReplaceAll(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "bedroom", "sleeping", 0.5)
	require.NoError(t, err)

	require.NoError(t, s.SaveTimePriors(ctx, areaID, []TimePrior{
		{DayOfWeek: 1, Hour: 10, Value: 0.1, WeeksOfData: 4, ComputedAt: mkTime(16, 0, 0)},
	}))
	require.NoError(t, s.SaveTimePriors(ctx, areaID, []TimePrior{
		{DayOfWeek: 2, Hour: 11, Value: 0.7, WeeksOfData: 3, ComputedAt: mkTime(17, 0, 0)},
	}))

	priors, err := s.TimePriorsForArea(ctx, areaID)
	require.NoError(t, err)

	assert.Equal(t, 0.5, priors[1*24+10].Value, "old bucket must reset on replace")
	assert.InDelta(t, 0.7, priors[2*24+11].Value, 1e-9)
}
