package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureArea inserts or updates an area by name and returns its id.
func (s *Store) EnsureArea(ctx context.Context, name, purpose string, threshold float64) (int64, error) {
	now := time.Now().UTC().Unix()
	_, err := s.Exec(ctx,
		`INSERT INTO areas (name, purpose, threshold, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET purpose = excluded.purpose, threshold = excluded.threshold`,
		name, purpose, threshold, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert area %s: %w", name, err)
	}

	var id int64
	if err := s.QueryRow(ctx, `SELECT id FROM areas WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read area id for %s: %w", name, err)
	}
	return id, nil
}

// EnsureSensor inserts or updates a sensor within an area and returns its id.
// Learned likelihoods are preserved on update.
func (s *Store) EnsureSensor(ctx context.Context, areaID int64, entity, category string, weight float64) (int64, error) {
	now := time.Now().UTC().Unix()
	_, err := s.Exec(ctx,
		`INSERT INTO sensors (area_id, entity, category, weight, last_updated) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(area_id, entity) DO UPDATE SET category = excluded.category, weight = excluded.weight`,
		areaID, entity, category, weight, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert sensor %s: %w", entity, err)
	}

	var id int64
	if err := s.QueryRow(ctx, `SELECT id FROM sensors WHERE area_id = ? AND entity = ?`, areaID, entity).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read sensor id for %s: %w", entity, err)
	}
	return id, nil
}

// SensorsForArea returns all sensors configured for an area.
func (s *Store) SensorsForArea(ctx context.Context, areaID int64) ([]Sensor, error) {
	rows, err := s.Query(ctx,
		`SELECT id, area_id, entity, category, weight, prob_true, prob_false, last_updated
		 FROM sensors WHERE area_id = ? ORDER BY entity`, areaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		var rec Sensor
		var updated int64
		if err := rows.Scan(&rec.ID, &rec.AreaID, &rec.Entity, &rec.Category, &rec.Weight,
			&rec.ProbTrue, &rec.ProbFalse, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		rec.LastUpdated = time.Unix(updated, 0).UTC()
		sensors = append(sensors, rec)
	}
	return sensors, rows.Err()
}

// UpdateSensorLikelihoods writes newly learned likelihoods for one
// sensor as a single read-modify-write transaction. Concurrent updates
// on the same sensor are last-write-wins at row granularity.
func (s *Store) UpdateSensorLikelihoods(ctx context.Context, areaID int64, entity string, probTrue, probFalse float64) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sensors WHERE area_id = ? AND entity = ?`, areaID, entity).Scan(&id)
		if err == sql.ErrNoRows {
			return fmt.Errorf("sensor %s not found in area %d", entity, areaID)
		}
		if err != nil {
			return fmt.Errorf("failed to read sensor %s: %w", entity, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sensors SET prob_true = ?, prob_false = ?, last_updated = ? WHERE id = ?`,
			probTrue, probFalse, time.Now().UTC().Unix(), id)
		if err != nil {
			return fmt.Errorf("failed to update sensor %s: %w", entity, err)
		}
		return nil
	})
}
