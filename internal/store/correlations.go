package store

import (
	"context"
	"fmt"
	"time"
)

// correlationHistory bounds how far back per-sensor correlation rows
// are kept. The history exists for trend visibility, not inference.
const correlationHistory = 6 * 30 * 24 * time.Hour

// SaveCorrelation appends a learned result for one sensor and prunes
// rows older than the history window.
func (s *Store) SaveCorrelation(ctx context.Context, c Correlation) error {
	_, err := s.Exec(ctx,
		`INSERT INTO correlations (area_id, entity, kind, prob_true, prob_false, coefficient,
		     classification, confidence, sample_count, analysis_start, analysis_end, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.AreaID, c.Entity, c.Kind, c.ProbTrue, c.ProbFalse, c.Coefficient,
		c.Classification, c.Confidence, c.SampleCount,
		c.AnalysisStart.UTC().Unix(), c.AnalysisEnd.UTC().Unix(), c.ComputedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to save correlation for %s: %w", c.Entity, err)
	}

	cutoff := c.ComputedAt.UTC().Add(-correlationHistory).Unix()
	_, err = s.Exec(ctx,
		`DELETE FROM correlations WHERE area_id = ? AND entity = ? AND computed_at < ?`,
		c.AreaID, c.Entity, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune correlation history for %s: %w", c.Entity, err)
	}
	return nil
}

// LatestCorrelation returns the most recent learned result for one
// sensor, or ok=false when none exists.
func (s *Store) LatestCorrelation(ctx context.Context, areaID int64, entity string) (Correlation, bool, error) {
	rows, err := s.Query(ctx,
		`SELECT id, area_id, entity, kind, prob_true, prob_false, coefficient,
		        classification, confidence, sample_count, analysis_start, analysis_end, computed_at
		 FROM correlations WHERE area_id = ? AND entity = ?
		 ORDER BY computed_at DESC, id DESC LIMIT 1`, areaID, entity)
	if err != nil {
		return Correlation{}, false, fmt.Errorf("failed to query correlation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Correlation{}, false, rows.Err()
	}
	c, err := scanCorrelation(rows)
	if err != nil {
		return Correlation{}, false, err
	}
	return c, true, nil
}

// CorrelationHistory returns stored results for one sensor, newest first.
func (s *Store) CorrelationHistory(ctx context.Context, areaID int64, entity string) ([]Correlation, error) {
	rows, err := s.Query(ctx,
		`SELECT id, area_id, entity, kind, prob_true, prob_false, coefficient,
		        classification, confidence, sample_count, analysis_start, analysis_end, computed_at
		 FROM correlations WHERE area_id = ? AND entity = ?
		 ORDER BY computed_at DESC, id DESC`, areaID, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation history: %w", err)
	}
	defer rows.Close()

	var history []Correlation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

func scanCorrelation(rows interface {
	Scan(dest ...interface{}) error
}) (Correlation, error) {
	var c Correlation
	var analysisStart, analysisEnd, computedAt int64
	err := rows.Scan(&c.ID, &c.AreaID, &c.Entity, &c.Kind, &c.ProbTrue, &c.ProbFalse,
		&c.Coefficient, &c.Classification, &c.Confidence, &c.SampleCount,
		&analysisStart, &analysisEnd, &computedAt)
	if err != nil {
		return Correlation{}, fmt.Errorf("failed to scan correlation: %w", err)
	}
	c.AnalysisStart = time.Unix(analysisStart, 0).UTC()
	c.AnalysisEnd = time.Unix(analysisEnd, 0).UTC()
	c.ComputedAt = time.Unix(computedAt, 0).UTC()
	return c, nil
}
