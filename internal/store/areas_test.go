package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureArea_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	second, err := s.EnsureArea(ctx, "living_room", "social", 0.6)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-registering must keep the row id")
}

func TestEnsureSensor_PreservesLearnedLikelihoods(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	_, err = s.EnsureSensor(ctx, areaID, "binary_sensor.motion", "motion", 1.0)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSensorLikelihoods(ctx, areaID, "binary_sensor.motion", 0.9, 0.03))

	// Re-registration on restart updates config fields only.
	_, err = s.EnsureSensor(ctx, areaID, "binary_sensor.motion", "motion", 0.8)
	require.NoError(t, err)

	sensors, err := s.SensorsForArea(ctx, areaID)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, 0.8, sensors[0].Weight)
	assert.InDelta(t, 0.9, sensors[0].ProbTrue, 1e-9)
	assert.InDelta(t, 0.03, sensors[0].ProbFalse, 1e-9)
}

func TestUpdateSensorLikelihoods_UnknownSensor(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	err = s.UpdateSensorLikelihoods(ctx, areaID, "binary_sensor.ghost", 0.9, 0.03)
	assert.Error(t, err)
}
