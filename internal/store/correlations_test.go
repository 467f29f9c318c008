package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestLatestCorrelation_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	_, ok, err := s.LatestCorrelation(ctx, areaID, "binary_sensor.motion")
	require.NoError(t, err)
	assert.False(t, ok)

	saved := Correlation{
		AreaID:         areaID,
		Entity:         "binary_sensor.motion",
		Kind:           "binary",
		ProbTrue:       f64(0.85),
		ProbFalse:      f64(0.04),
		Classification: "strong_positive",
		Confidence:     0.7,
		SampleCount:    42,
		AnalysisStart:  mkTime(1, 0, 0),
		AnalysisEnd:    mkTime(16, 0, 0),
		ComputedAt:     mkTime(16, 12, 0),
	}
	require.NoError(t, s.SaveCorrelation(ctx, saved))

	got, ok, err := s.LatestCorrelation(ctx, areaID, "binary_sensor.motion")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "binary", got.Kind)
	require.NotNil(t, got.ProbTrue)
	assert.InDelta(t, 0.85, *got.ProbTrue, 1e-9)
	assert.Nil(t, got.Coefficient, "binary results carry no coefficient")
	assert.Equal(t, saved.ComputedAt, got.ComputedAt)
}

func TestLatestCorrelation_PicksNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "office", "working", 0.5)
	require.NoError(t, err)

	for i, class := range []string{"none", "positive", "strong_positive"} {
		require.NoError(t, s.SaveCorrelation(ctx, Correlation{
			AreaID: areaID, Entity: "sensor.illuminance", Kind: "numeric",
			Coefficient:    f64(float64(i) * 0.3),
			Classification: class,
			ComputedAt:     mkTime(10+i, 12, 0),
		}))
	}

	got, ok, err := s.LatestCorrelation(ctx, areaID, "sensor.illuminance")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "strong_positive", got.Classification)
	assert.Nil(t, got.ProbTrue, "numeric results carry no likelihoods")

	history, err := s.CorrelationHistory(ctx, areaID, "sensor.illuminance")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "strong_positive", history[0].Classification)
	assert.Equal(t, "none", history[2].Classification)
}

func TestSaveCorrelation_PrunesOldHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "bedroom", "sleeping", 0.5)
	require.NoError(t, err)

	now := mkTime(20, 12, 0)
	require.NoError(t, s.SaveCorrelation(ctx, Correlation{
		AreaID: areaID, Entity: "binary_sensor.motion", Kind: "binary",
		Classification: "positive",
		ComputedAt:     now.Add(-correlationHistory - 24*time.Hour),
	}))
	require.NoError(t, s.SaveCorrelation(ctx, Correlation{
		AreaID: areaID, Entity: "binary_sensor.motion", Kind: "binary",
		Classification: "strong_positive",
		ComputedAt:     now,
	}))

	history, err := s.CorrelationHistory(ctx, areaID, "binary_sensor.motion")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "strong_positive", history[0].Classification)
}
