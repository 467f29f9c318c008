package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Storage-fault recovery ladder: integrity check, then WAL recovery,
// then restore from the newest periodic backup, then recreate the
// schema discarding data. Each step runs only if the previous one
// failed; the first success short-circuits.

// HealthCheck verifies store integrity via PRAGMA integrity_check.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result string
	if err := s.QueryRow(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}

// CheckpointWAL forces a full WAL checkpoint back into the main file.
func (s *Store) CheckpointWAL(ctx context.Context) error {
	if _, err := s.Exec(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return nil
}

// Backup writes a consistent copy of the store into backupDir using
// VACUUM INTO. Older backups beyond the newest three are removed.
func (s *Store) Backup(ctx context.Context, backupDir string) (string, error) {
	if s.path == ":memory:" {
		return "", fmt.Errorf("cannot back up in-memory store")
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("presence-%s.db", time.Now().UTC().Format("20060102T150405"))
	target := filepath.Join(backupDir, name)
	if _, err := s.Exec(ctx, `VACUUM INTO ?`, target); err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}

	if err := trimBackups(backupDir, 3); err != nil {
		s.logger.Warn("Failed to trim old backups", "dir", backupDir, "error", err)
	}

	s.logger.Info("Store backup written", "path", target)
	return target, nil
}

// Recover attempts to bring a faulty store back to a usable state and
// returns a reopened store. The caller must treat the receiver as
// closed afterwards. The dataLost result reports whether the final
// schema-recreate step had to discard data.
func Recover(ctx context.Context, s *Store, backupDir string) (recovered *Store, dataLost bool, err error) {
	logger := s.logger
	path := s.path

	// Step 1: WAL recovery. A truncating checkpoint followed by a
	// clean integrity check means the file is usable again.
	if err := s.CheckpointWAL(ctx); err == nil {
		if err := s.HealthCheck(ctx); err == nil {
			logger.Info("Store recovered via WAL checkpoint", "path", path)
			return s, false, nil
		}
	}
	s.close()

	// Step 2: restore the newest backup.
	if backup, ok := newestBackup(backupDir); ok {
		if err := removeDatabaseFiles(path); err != nil {
			return nil, false, fmt.Errorf("failed to clear corrupt store: %w", err)
		}
		if err := copyFile(backup, path); err != nil {
			logger.Error("Backup restore failed", "backup", backup, "error", err)
		} else {
			restored, err := Open(path, logger)
			if err == nil {
				if err := restored.HealthCheck(ctx); err == nil {
					logger.Warn("Store restored from backup", "backup", backup)
					return restored, false, nil
				}
				restored.close()
			}
		}
	}

	// Step 3: recreate from scratch, discarding data.
	if err := removeDatabaseFiles(path); err != nil {
		return nil, false, fmt.Errorf("failed to clear store for recreation: %w", err)
	}
	fresh, err := Open(path, logger)
	if err != nil {
		return nil, false, fmt.Errorf("failed to recreate store: %w", err)
	}
	logger.Error("Store recreated from scratch, historical data discarded", "path", path)
	return fresh, true, nil
}

func newestBackup(backupDir string) (string, bool) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return "", false
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".db" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	// Backup names embed a sortable UTC timestamp.
	sort.Strings(names)
	return filepath.Join(backupDir, names[len(names)-1]), true
}

func trimBackups(backupDir string, keep int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".db" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > keep {
		if err := os.Remove(filepath.Join(backupDir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
