package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/harmaja/presence-engine/internal/engine"
	"github.com/harmaja/presence-engine/internal/learning"
	"github.com/harmaja/presence-engine/internal/store"
	"github.com/harmaja/presence-engine/pkg/redis"
)

// SensorReport is one sensor's learning outcome in an analysis run.
type SensorReport struct {
	Entity    string  `json:"entity"`
	Category  string  `json:"category"`
	ProbTrue  float64 `json:"prob_true"`
	ProbFalse float64 `json:"prob_false"`
	Learned   bool    `json:"learned"`
	Reason    string  `json:"reason,omitempty"`

	Correlation    *float64 `json:"correlation,omitempty"`
	Classification string   `json:"classification,omitempty"`

	// Trend over stored analysis runs.
	PreviousClassification string `json:"previous_classification,omitempty"`
	AnalysisRuns           int    `json:"analysis_runs,omitempty"`
}

// AreaReport is one area's result in an analysis run.
type AreaReport struct {
	Area        string         `json:"area"`
	Probability float64        `json:"probability"`
	Occupied    bool           `json:"occupied"`
	Threshold   float64        `json:"threshold"`
	GlobalPrior float64        `json:"global_prior"`
	Sensors     []SensorReport `json:"sensors"`
	Errors      []string       `json:"errors,omitempty"`
}

// AnalysisReport is the outcome of one full analysis run.
type AnalysisReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Areas      []AreaReport `json:"areas"`
	Errors     []string     `json:"errors,omitempty"`
}

// RunAnalysis executes one full analysis cycle: sync, health check and
// prune, occupied-cache refresh, tiered aggregation, prior and
// likelihood learning, then state publication. Step failures are
// logged and collected; only steps that structurally depend on a
// failed one are skipped, and the cycle always ends by republishing
// current fusion state.
func (a *Agent) RunAnalysis(ctx context.Context) (*AnalysisReport, error) {
	a.analysisMu.Lock()
	defer a.analysisMu.Unlock()

	now := time.Now().UTC()
	report := &AnalysisReport{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}

	a.logger.Info("Starting analysis run", "run_id", report.RunID)

	if err := a.await("interval_sync", func(ctx context.Context) error {
		return a.syncObservations(ctx)
	}); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("interval sync: %v", err))
	}

	if err := a.await("store_health", func(ctx context.Context) error {
		return a.checkStoreHealth(ctx)
	}); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("store health: %v", err))
	}

	if err := a.await("prune", func(ctx context.Context) error {
		_, err := a.store.Prune(ctx, now, a.retentionWindows())
		return err
	}); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("prune: %v", err))
	}

	if err := a.await("backup", func(ctx context.Context) error {
		return a.backupIfDue(ctx, now)
	}); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("backup: %v", err))
	}

	// The occupied cache must be rebuilt before aggregation deletes
	// the raw motion rows it derives from.
	cacheOK := true
	if err := a.await("occupied_cache", func(ctx context.Context) error {
		return a.refreshOccupiedCaches(ctx, now)
	}); err != nil {
		cacheOK = false
		report.Errors = append(report.Errors, fmt.Sprintf("occupied cache: %v", err))
	}

	if cacheOK {
		if err := a.await("interval_aggregation", func(ctx context.Context) error {
			_, err := a.store.AggregateIntervals(ctx, now, a.loc,
				a.retentionDays(a.cfg.RawIntervalRetentionDays),
				a.retentionDays(a.cfg.DailyAggregateRetentionDays),
				a.retentionDays(a.cfg.WeeklyAggregateRetentionDays))
			return err
		}); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("interval aggregation: %v", err))
		}

		if err := a.await("numeric_aggregation", func(ctx context.Context) error {
			_, err := a.store.AggregateNumeric(ctx, now, a.loc,
				a.retentionDays(a.cfg.RawNumericRetentionDays),
				a.retentionDays(a.cfg.HourlyNumericRetentionDays))
			return err
		}); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("numeric aggregation: %v", err))
		}
	} else {
		a.logger.Warn("Skipping aggregation, occupied cache refresh failed")
		report.Errors = append(report.Errors, "aggregation skipped: occupied cache refresh failed")
	}

	for _, area := range a.areas {
		report.Areas = append(report.Areas, a.analyzeArea(ctx, area, now))
	}

	// Republish fusion state so a failed learning step never leaves
	// stale public output.
	for _, area := range a.areas {
		area.recompute(time.Now().UTC(), a.loc)
		a.publishAreaState(ctx, area)
	}

	report.FinishedAt = time.Now().UTC()
	a.persistRunRecord(ctx, report)

	a.logger.Info("Analysis run finished",
		"run_id", report.RunID,
		"areas", len(report.Areas),
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// await submits a storage-bound step to the task queue and blocks
// until it completes.
func (a *Agent) await(name string, run func(ctx context.Context) error) error {
	return a.queue.Submit(name, run).Wait(context.Background())
}

func (a *Agent) syncObservations(ctx context.Context) error {
	intervals, samples := a.tracker.Drain()

	if len(intervals) > 0 {
		wrote, err := a.store.SyncIntervals(ctx, intervals)
		if err != nil {
			return fmt.Errorf("sync intervals: %w", err)
		}
		a.logger.Debug("Synced intervals", "buffered", len(intervals), "written", wrote)
	}

	for _, s := range samples {
		if _, err := a.store.InsertSample(ctx, s); err != nil {
			return fmt.Errorf("insert sample for %s: %w", s.Entity, err)
		}
	}
	return nil
}

// checkStoreHealth runs the integrity check and walks the recovery
// ladder on failure: WAL checkpoint, backup restore, schema rebuild.
func (a *Agent) checkStoreHealth(ctx context.Context) error {
	if err := a.store.HealthCheck(ctx); err == nil {
		return nil
	} else {
		a.logger.Error("Store integrity check failed, attempting recovery", "error", err)
	}

	recovered, dataLost, err := store.Recover(ctx, a.store, a.cfg.BackupDir)
	if err != nil {
		return fmt.Errorf("store recovery failed: %w", err)
	}
	a.store = recovered
	if dataLost {
		a.logger.Warn("Store recovered with data loss")
	} else {
		a.logger.Info("Store recovered without data loss")
	}
	return nil
}

func (a *Agent) backupIfDue(ctx context.Context, now time.Time) error {
	interval := time.Duration(a.cfg.BackupIntervalHrs) * time.Hour
	if interval <= 0 {
		return nil
	}

	last, ok, err := a.store.GetMetadata(ctx, "last_backup_ts")
	if err != nil {
		return err
	}
	if ok {
		ts, err := strconv.ParseInt(last, 10, 64)
		if err == nil && now.Sub(time.Unix(ts, 0).UTC()) < interval {
			return nil
		}
	}

	path, err := a.store.Backup(ctx, a.cfg.BackupDir)
	if err != nil {
		return err
	}
	a.logger.Info("Store backup written", "path", path)
	return a.store.SetMetadata(ctx, "last_backup_ts", strconv.FormatInt(now.Unix(), 10))
}

// refreshOccupiedCaches rebuilds every area's occupied-interval cache
// from raw motion intervals over the learning window.
func (a *Agent) refreshOccupiedCaches(ctx context.Context, now time.Time) error {
	from := now.Add(-a.historyWindow())
	timeout := time.Duration(a.cfg.MotionTimeoutSec) * time.Second

	var firstErr error
	for _, area := range a.areas {
		entities := area.motionEntities()
		if len(entities) == 0 {
			continue
		}

		motion, err := a.store.MotionIntervals(ctx, entities, area.motionActiveStates(), from, now)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("area %s: %w", area.Name, err)
			}
			continue
		}

		occupied := learning.DeriveOccupiedIntervals(motion, timeout)
		if err := a.store.ReplaceOccupiedIntervals(ctx, area.ID, occupied, now); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("area %s: %w", area.Name, err)
			}
		}
	}
	return firstErr
}

// analyzeArea recomputes one area's priors and per-sensor likelihoods
// from the occupied cache. Insufficient-data outcomes keep the current
// values and are reported with their reason, not treated as errors.
func (a *Agent) analyzeArea(ctx context.Context, area *AreaState, now time.Time) AreaReport {
	ar := AreaReport{
		Area:      area.Name,
		Threshold: area.Threshold,
	}

	// Learners may only consume a cache rebuilt within its TTL. After
	// a failed refresh the stale cache is skipped rather than silently
	// feeding old evidence into priors and likelihoods.
	if len(area.motionEntities()) > 0 {
		ttl := time.Duration(a.cfg.OccupiedCacheTTLMin) * time.Minute
		fresh := false
		if err := a.await("cache_freshness", func(ctx context.Context) error {
			var err error
			fresh, err = a.store.OccupiedCacheFresh(ctx, area.ID, ttl, now)
			return err
		}); err != nil {
			ar.Errors = append(ar.Errors, fmt.Sprintf("occupied cache freshness: %v", err))
			fresh = false
		}
		if !fresh {
			ar.Errors = append(ar.Errors, "occupied cache stale, learning skipped")
			a.logger.Warn("Skipping learning on stale occupied cache",
				"area", area.Name, "ttl", ttl)
			area.mu.Lock()
			ar.Probability = area.Probability
			ar.Occupied = area.Occupied
			ar.GlobalPrior = area.GlobalPrior
			area.mu.Unlock()
			return ar
		}
	}

	var occupied []store.OccupiedInterval
	if err := a.await("load_occupied", func(ctx context.Context) error {
		var err error
		occupied, err = a.store.OccupiedIntervals(ctx, area.ID)
		return err
	}); err != nil {
		ar.Errors = append(ar.Errors, fmt.Sprintf("load occupied intervals: %v", err))
	}

	windowStart := now.Add(-a.historyWindow())

	prior := learning.ComputeGlobalPrior(occupied, windowStart, now, a.logger)
	if prior.Persist {
		if err := a.await("save_global_prior", func(ctx context.Context) error {
			return a.store.SaveGlobalPrior(ctx, store.GlobalPrior{
				AreaID:         area.ID,
				Value:          prior.Value,
				PeriodStart:    prior.PeriodStart,
				PeriodEnd:      prior.PeriodEnd,
				SampleDuration: prior.OccupiedTotal,
				IntervalCount:  prior.IntervalCount,
				ComputedAt:     now,
			})
		}); err != nil {
			ar.Errors = append(ar.Errors, fmt.Sprintf("save global prior: %v", err))
		}
	}

	timePriors := learning.ComputeTimePriors(occupied, a.loc, now)
	if len(timePriors) > 0 {
		if err := a.await("save_time_priors", func(ctx context.Context) error {
			return a.store.SaveTimePriors(ctx, area.ID, timePriors)
		}); err != nil {
			ar.Errors = append(ar.Errors, fmt.Sprintf("save time priors: %v", err))
		}
	}

	area.mu.Lock()
	if prior.Persist {
		area.GlobalPrior = prior.Value
	}
	for _, tp := range timePriors {
		area.TimePriors[tp.DayOfWeek*24+tp.Hour] = tp.Value
	}
	sensors := make([]*engine.SensorRecord, 0, len(area.Sensors))
	for _, s := range area.Sensors {
		sensors = append(sensors, s)
	}
	area.mu.Unlock()

	for _, sensor := range sensors {
		if sensor.Category.IsNumeric() {
			ar.Sensors = append(ar.Sensors, a.analyzeNumericSensor(ctx, area, sensor, occupied, windowStart, now))
		} else {
			ar.Sensors = append(ar.Sensors, a.analyzeBinarySensor(ctx, area, sensor, occupied, windowStart, now))
		}
	}

	area.mu.Lock()
	ar.Probability = area.Probability
	ar.Occupied = area.Occupied
	ar.GlobalPrior = area.GlobalPrior
	area.mu.Unlock()

	return ar
}

func (a *Agent) analyzeBinarySensor(ctx context.Context, area *AreaState, sensor *engine.SensorRecord,
	occupied []store.OccupiedInterval, windowStart, now time.Time) SensorReport {

	sr := SensorReport{
		Entity:    sensor.Entity,
		Category:  string(sensor.Category),
		ProbTrue:  sensor.ProbTrue,
		ProbFalse: sensor.ProbFalse,
	}

	var intervals []store.Interval
	if err := a.await("load_sensor_intervals", func(ctx context.Context) error {
		var err error
		intervals, err = a.store.IntervalsForEntity(ctx, sensor.Entity, windowStart, now)
		return err
	}); err != nil {
		sr.Reason = fmt.Sprintf("load intervals: %v", err)
		return sr
	}

	active := learning.ActiveSpans(intervals, sensor.ActiveStates)
	strictMotion := sensor.Category == engine.CategoryMotion
	result := learning.ComputeLikelihoods(active, occupied, windowStart, now,
		len(intervals) > 0, strictMotion)

	if !result.OK() {
		sr.Reason = string(result.Insufficient)
		a.logger.Debug("Likelihood learning fell back to defaults",
			"area", area.Name,
			"entity", sensor.Entity,
			"reason", result.Insufficient)
		return sr
	}

	area.mu.Lock()
	err := sensor.SetLikelihoods(result.ProbTrue, result.ProbFalse)
	area.mu.Unlock()
	if err != nil {
		sr.Reason = err.Error()
		return sr
	}

	sr.ProbTrue = result.ProbTrue
	sr.ProbFalse = result.ProbFalse
	sr.Learned = true

	if err := a.await("persist_likelihoods", func(ctx context.Context) error {
		if err := a.store.UpdateSensorLikelihoods(ctx, area.ID, sensor.Entity,
			result.ProbTrue, result.ProbFalse); err != nil {
			return err
		}
		pt, pf := result.ProbTrue, result.ProbFalse
		return a.store.SaveCorrelation(ctx, store.Correlation{
			AreaID:        area.ID,
			Entity:        sensor.Entity,
			Kind:          "binary",
			ProbTrue:      &pt,
			ProbFalse:     &pf,
			SampleCount:   len(intervals),
			AnalysisStart: windowStart,
			AnalysisEnd:   now,
			ComputedAt:    now,
		})
	}); err != nil {
		sr.Reason = fmt.Sprintf("persist: %v", err)
	}

	return sr
}

func (a *Agent) analyzeNumericSensor(ctx context.Context, area *AreaState, sensor *engine.SensorRecord,
	occupied []store.OccupiedInterval, windowStart, now time.Time) SensorReport {

	sr := SensorReport{
		Entity:    sensor.Entity,
		Category:  string(sensor.Category),
		ProbTrue:  sensor.ProbTrue,
		ProbFalse: sensor.ProbFalse,
	}

	var aggregates []store.NumericAggregate
	var raw []store.NumericSample
	if err := a.await("load_numeric_data", func(ctx context.Context) error {
		var err error
		aggregates, err = a.store.NumericAggregates(ctx, sensor.Entity, "hourly", windowStart, now)
		if err != nil {
			return err
		}
		raw, err = a.store.SamplesForEntity(ctx, sensor.Entity, windowStart, now)
		return err
	}); err != nil {
		sr.Reason = fmt.Sprintf("load samples: %v", err)
		return sr
	}

	points := learning.BuildSamplePoints(aggregates, raw)
	result := learning.ComputeCorrelation(points, occupied, a.cfg.MinCorrelationSamples)

	if !result.OK() {
		sr.Reason = string(result.Insufficient)
		a.logger.Debug("Correlation analysis fell back to defaults",
			"area", area.Name,
			"entity", sensor.Entity,
			"reason", result.Insufficient,
			"samples", result.SampleCount)
		return sr
	}

	coeff := result.Coefficient
	sr.Correlation = &coeff
	sr.Classification = result.Classification
	sr.Learned = result.Classification != learning.ClassNone

	if err := a.await("persist_correlation", func(ctx context.Context) error {
		return a.store.SaveCorrelation(ctx, store.Correlation{
			AreaID:         area.ID,
			Entity:         sensor.Entity,
			Kind:           "numeric",
			Coefficient:    &coeff,
			Classification: result.Classification,
			Confidence:     result.Confidence,
			SampleCount:    result.SampleCount,
			AnalysisStart:  windowStart,
			AnalysisEnd:    now,
			ComputedAt:     now,
		})
	}); err != nil {
		sr.Reason = fmt.Sprintf("persist: %v", err)
		return sr
	}

	var history []store.Correlation
	if err := a.await("load_correlation_history", func(ctx context.Context) error {
		var err error
		history, err = a.store.CorrelationHistory(ctx, area.ID, sensor.Entity)
		return err
	}); err == nil {
		sr.AnalysisRuns = len(history)
		if len(history) > 1 {
			sr.PreviousClassification = history[1].Classification
		}
	}

	return sr
}

// persistRunRecord mirrors the run summary into Redis per area and
// stamps the store metadata.
func (a *Agent) persistRunRecord(ctx context.Context, report *AnalysisReport) {
	for _, areaReport := range report.Areas {
		data, err := json.Marshal(struct {
			RunID      string `json:"run_id"`
			FinishedAt string `json:"finished_at"`
			AreaReport
		}{
			RunID:      report.RunID,
			FinishedAt: report.FinishedAt.Format(time.RFC3339),
			AreaReport: areaReport,
		})
		if err != nil {
			continue
		}
		if err := a.redis.Set(ctx, redis.AnalysisRunKey(areaReport.Area), string(data), areaStateTTL); err != nil {
			a.logger.Debug("Failed to mirror analysis run", "area", areaReport.Area, "error", err)
		}
	}

	if err := a.await("stamp_run", func(ctx context.Context) error {
		return a.store.SetMetadata(ctx, "last_analysis_ts",
			strconv.FormatInt(report.FinishedAt.Unix(), 10))
	}); err != nil {
		a.logger.Warn("Failed to stamp analysis run", "error", err)
	}
}

func (a *Agent) historyWindow() time.Duration {
	return time.Duration(a.cfg.HistoryWindowDays) * 24 * time.Hour
}

func (a *Agent) retentionDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func (a *Agent) retentionWindows() store.RetentionWindows {
	return store.RetentionWindows{
		RawIntervals:     a.retentionDays(a.cfg.RawIntervalRetentionDays),
		DailyAggregates:  a.retentionDays(a.cfg.DailyAggregateRetentionDays),
		WeeklyAggregates: a.retentionDays(a.cfg.WeeklyAggregateRetentionDays),
		RawNumeric:       a.retentionDays(a.cfg.RawNumericRetentionDays),
		HourlyNumeric:    a.retentionDays(a.cfg.HourlyNumericRetentionDays),
	}
}
