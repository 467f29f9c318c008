package store

import (
	"context"
	"fmt"
	"strconv"
)

// schemaVersion identifies the persisted schema. A stored version that
// does not match causes the store file to be deleted and rebuilt;
// there is deliberately no in-place migration path.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE areas (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    purpose    TEXT NOT NULL DEFAULT 'social',
    threshold  REAL NOT NULL DEFAULT 0.5,
    created_at INTEGER NOT NULL
);

CREATE TABLE sensors (
    id           INTEGER PRIMARY KEY,
    area_id      INTEGER NOT NULL,
    entity       TEXT NOT NULL,
    category     TEXT NOT NULL CHECK (category IN ('motion', 'door', 'window', 'media', 'appliance', 'environmental')),
    weight       REAL NOT NULL DEFAULT 1.0,
    prob_true    REAL NOT NULL DEFAULT 0.5,
    prob_false   REAL NOT NULL DEFAULT 0.5,
    last_updated INTEGER NOT NULL,

    UNIQUE (area_id, entity),
    FOREIGN KEY (area_id) REFERENCES areas(id)
);

-- Raw state intervals. All timestamps are naive UTC unix seconds.
CREATE TABLE intervals (
    id                INTEGER PRIMARY KEY,
    entity            TEXT NOT NULL,
    state             TEXT NOT NULL,
    start_ts          INTEGER NOT NULL,
    end_ts            INTEGER NOT NULL,
    duration_sec      REAL NOT NULL,
    aggregation_level TEXT NOT NULL DEFAULT 'raw',

    UNIQUE (entity, start_ts, end_ts)
);

CREATE INDEX idx_intervals_entity_start ON intervals(entity, start_ts);
CREATE INDEX idx_intervals_end          ON intervals(end_ts);

CREATE TABLE interval_aggregates (
    id                  INTEGER PRIMARY KEY,
    entity              TEXT NOT NULL,
    state               TEXT NOT NULL,
    period              TEXT NOT NULL CHECK (period IN ('daily', 'weekly', 'monthly')),
    period_start        INTEGER NOT NULL,
    period_end          INTEGER NOT NULL,
    interval_count      INTEGER NOT NULL,
    total_duration_sec  REAL NOT NULL,
    min_duration_sec    REAL NOT NULL,
    max_duration_sec    REAL NOT NULL,
    avg_duration_sec    REAL NOT NULL,
    median_duration_sec REAL NOT NULL,
    std_duration_sec    REAL NOT NULL,
    created_at          INTEGER NOT NULL,

    UNIQUE (entity, state, period, period_start)
);

CREATE INDEX idx_interval_aggregates_period ON interval_aggregates(period, period_start);

-- Precomputed motion-derived occupied intervals per area.
CREATE TABLE occupied_cache (
    id          INTEGER PRIMARY KEY,
    area_id     INTEGER NOT NULL,
    start_ts    INTEGER NOT NULL,
    end_ts      INTEGER NOT NULL,
    computed_at INTEGER NOT NULL,

    FOREIGN KEY (area_id) REFERENCES areas(id)
);

CREATE INDEX idx_occupied_cache_area ON occupied_cache(area_id, start_ts);

-- Current global prior per area, superseded on each analysis cycle.
CREATE TABLE global_priors (
    area_id             INTEGER PRIMARY KEY,
    value               REAL NOT NULL,
    period_start        INTEGER NOT NULL,
    period_end          INTEGER NOT NULL,
    sample_duration_sec REAL NOT NULL,
    interval_count      INTEGER NOT NULL,
    computed_at         INTEGER NOT NULL,

    FOREIGN KEY (area_id) REFERENCES areas(id)
);

-- Bounded audit trail of prior computations.
CREATE TABLE global_prior_runs (
    id                  INTEGER PRIMARY KEY,
    run_id              TEXT NOT NULL,
    area_id             INTEGER NOT NULL,
    value               REAL NOT NULL,
    period_start        INTEGER NOT NULL,
    period_end          INTEGER NOT NULL,
    sample_duration_sec REAL NOT NULL,
    interval_count      INTEGER NOT NULL,
    computed_at         INTEGER NOT NULL,

    FOREIGN KEY (area_id) REFERENCES areas(id)
);

CREATE INDEX idx_global_prior_runs_area ON global_prior_runs(area_id, computed_at DESC);

-- Time-of-day priors: one row per populated (day-of-week, hour) bucket.
CREATE TABLE time_priors (
    area_id       INTEGER NOT NULL,
    day_of_week   INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
    hour          INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
    value         REAL NOT NULL,
    weeks_of_data INTEGER NOT NULL,
    computed_at   INTEGER NOT NULL,

    PRIMARY KEY (area_id, day_of_week, hour),
    FOREIGN KEY (area_id) REFERENCES areas(id)
);

CREATE TABLE numeric_samples (
    id     INTEGER PRIMARY KEY,
    entity TEXT NOT NULL,
    value  REAL NOT NULL,
    ts     INTEGER NOT NULL,

    UNIQUE (entity, ts)
);

CREATE INDEX idx_numeric_samples_entity_ts ON numeric_samples(entity, ts);

CREATE TABLE numeric_aggregates (
    id           INTEGER PRIMARY KEY,
    entity       TEXT NOT NULL,
    period       TEXT NOT NULL CHECK (period IN ('hourly', 'weekly')),
    period_start INTEGER NOT NULL,
    period_end   INTEGER NOT NULL,
    sample_count INTEGER NOT NULL,
    min_value    REAL NOT NULL,
    max_value    REAL NOT NULL,
    avg_value    REAL NOT NULL,
    median_value REAL NOT NULL,
    std_value    REAL NOT NULL,
    created_at   INTEGER NOT NULL,

    UNIQUE (entity, period, period_start)
);

CREATE INDEX idx_numeric_aggregates_period ON numeric_aggregates(period, period_start);

-- Per-sensor learned likelihoods and numeric correlations, with a
-- bounded per-sensor history for trend visibility.
CREATE TABLE correlations (
    id             INTEGER PRIMARY KEY,
    area_id        INTEGER NOT NULL,
    entity         TEXT NOT NULL,
    kind           TEXT NOT NULL CHECK (kind IN ('binary', 'numeric')),
    prob_true      REAL,
    prob_false     REAL,
    coefficient    REAL,
    classification TEXT NOT NULL,
    confidence     REAL NOT NULL,
    sample_count   INTEGER NOT NULL,
    analysis_start INTEGER NOT NULL,
    analysis_end   INTEGER NOT NULL,
    computed_at    INTEGER NOT NULL,

    FOREIGN KEY (area_id) REFERENCES areas(id)
);

CREATE INDEX idx_correlations_entity ON correlations(area_id, entity, computed_at DESC);
`

// ensureSchema verifies the stored schema version. A missing metadata
// table means a fresh database; a version mismatch is an error that
// triggers the rebuild in Open.
func (s *Store) ensureSchema() error {
	ctx := context.Background()

	var name string
	err := s.QueryRow(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'metadata'`).Scan(&name)
	if err != nil {
		// No metadata table: treat as empty database.
		return s.createSchema()
	}

	value, ok, err := s.GetMetadata(ctx, "schema_version")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("schema version missing")
	}
	stored, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("unreadable schema version %q", value)
	}
	if stored != schemaVersion {
		return fmt.Errorf("schema version mismatch: store has %d, want %d", stored, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema() error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.SetMetadata(ctx, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return err
	}
	s.logger.Info("Store schema created", "version", schemaVersion)
	return nil
}

// SchemaVersion returns the stored schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	value, ok, err := s.GetMetadata(ctx, "schema_version")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("schema version missing")
	}
	return strconv.Atoi(value)
}
