package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_WritesAndTrims(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")

	s, err := Open(filepath.Join(dir, "presence.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	first, err := s.Backup(ctx, backupDir)
	require.NoError(t, err)
	assert.FileExists(t, first)

	// Backup names carry second resolution, so same-second copies
	// overwrite rather than accumulate. Four distinct names keep the
	// newest three.
	for _, name := range []string{"presence-20260101T000000.db", "presence-20260102T000000.db", "presence-20260103T000000.db"} {
		require.NoError(t, copyFile(first, filepath.Join(backupDir, name)))
	}
	require.NoError(t, trimBackups(backupDir, 3))

	newest, ok := newestBackup(backupDir)
	require.True(t, ok)
	assert.Equal(t, first, newest, "timestamped names sort newest last")
}

func TestBackup_RejectsMemoryStore(t *testing.T) {
	s := testStore(t)
	_, err := s.Backup(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestRecover_HealthyStoreSurvives(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "presence.db"), nil)
	require.NoError(t, err)

	areaID, err := s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)

	recovered, dataLost, err := Recover(ctx, s, filepath.Join(dir, "backups"))
	require.NoError(t, err)
	t.Cleanup(func() { recovered.Close() })

	assert.False(t, dataLost)
	again, err := recovered.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)
	assert.Equal(t, areaID, again, "data must survive WAL recovery")
}

func TestRecover_RecreatesWithoutBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "presence.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	_, err = s.EnsureArea(ctx, "living_room", "social", 0.5)
	require.NoError(t, err)
	s.Close()

	// A closed handle fails both the checkpoint and the integrity
	// check, pushing recovery down the ladder. With no backups the
	// only option left is recreating the schema.
	recovered, dataLost, err := Recover(ctx, s, filepath.Join(dir, "missing-backups"))
	require.NoError(t, err)
	t.Cleanup(func() { recovered.Close() })

	assert.True(t, dataLost)
	areas, err := recovered.SensorsForArea(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, areas)
}
