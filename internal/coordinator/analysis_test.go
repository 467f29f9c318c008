package coordinator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harmaja/presence-engine/internal/engine"
	"github.com/harmaja/presence-engine/internal/store"
	"github.com/harmaja/presence-engine/pkg/config"
)

func testAgent(t *testing.T) *Agent {
	t.Helper()

	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &Agent{
		store:    st,
		cfg:      config.NewConfig(),
		logger:   logger,
		loc:      time.UTC,
		queue:    NewTaskQueue(16, logger),
		tracker:  newIntervalTracker(),
		byEntity: make(map[string]int),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a.queue.Start(ctx)

	return a
}

func registeredArea(t *testing.T, a *Agent) *AreaState {
	t.Helper()

	area, err := newAreaState(0, testAreaConfig(), nil, a.logger)
	if err != nil {
		t.Fatalf("newAreaState: %v", err)
	}
	ctx := context.Background()
	id, err := a.store.EnsureArea(ctx, area.Name, area.Purpose, area.Threshold)
	if err != nil {
		t.Fatalf("ensure area: %v", err)
	}
	area.ID = id
	a.areas = append(a.areas, area)
	return area
}

func hasError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestAnalyzeArea_SkipsLearningOnStaleCache(t *testing.T) {
	a := testAgent(t)
	area := registeredArea(t, a)
	ctx := context.Background()
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	// Cache last rebuilt two hours ago against a one-hour TTL.
	stale := now.Add(-2 * time.Hour)
	err := a.store.ReplaceOccupiedIntervals(ctx, area.ID, []store.OccupiedInterval{
		{Start: stale.Add(-time.Hour), End: stale},
	}, stale)
	if err != nil {
		t.Fatalf("replace occupied intervals: %v", err)
	}

	report := a.analyzeArea(ctx, area, now)

	if !hasError(report.Errors, "occupied cache stale") {
		t.Errorf("expected stale-cache error, got %v", report.Errors)
	}
	if len(report.Sensors) != 0 {
		t.Errorf("expected no sensor learning on stale cache, got %d reports", len(report.Sensors))
	}
}

func TestAnalyzeArea_EmptyCacheIsStale(t *testing.T) {
	a := testAgent(t)
	area := registeredArea(t, a)
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	report := a.analyzeArea(context.Background(), area, now)

	if !hasError(report.Errors, "occupied cache stale") {
		t.Errorf("expected stale-cache error for empty cache, got %v", report.Errors)
	}
}

func TestAnalyzeNumericSensor_ReportsTrend(t *testing.T) {
	a := testAgent(t)
	area := registeredArea(t, a)
	ctx := context.Background()
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-24 * time.Hour)

	sensor, err := engine.NewSensorRecord("sensor.co2", engine.CategoryEnvironmental, 0, nil, nil, nil)
	if err != nil {
		t.Fatalf("new sensor record: %v", err)
	}

	occupied := []store.OccupiedInterval{
		{Start: now.Add(-10 * time.Hour), End: now.Add(-5 * time.Hour)},
	}
	// High readings during occupancy, low outside, enough points to
	// clear the minimum sample count.
	for i := 0; i < 6; i++ {
		if _, err := a.store.InsertSample(ctx, store.NumericSample{
			Entity: "sensor.co2", Value: 900,
			At: now.Add(-10 * time.Hour).Add(time.Duration(i) * 30 * time.Minute),
		}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
		if _, err := a.store.InsertSample(ctx, store.NumericSample{
			Entity: "sensor.co2", Value: 400,
			At: now.Add(-4 * time.Hour).Add(time.Duration(i) * 10 * time.Minute),
		}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}

	first := a.analyzeNumericSensor(ctx, area, sensor, occupied, windowStart, now)
	if first.Classification == "" {
		t.Fatalf("expected a classification, got reason %q", first.Reason)
	}
	if first.AnalysisRuns != 1 {
		t.Errorf("expected one stored run after first analysis, got %d", first.AnalysisRuns)
	}

	second := a.analyzeNumericSensor(ctx, area, sensor, occupied, windowStart, now)
	if second.AnalysisRuns != 2 {
		t.Errorf("expected two stored runs, got %d", second.AnalysisRuns)
	}
	if second.PreviousClassification != first.Classification {
		t.Errorf("expected previous classification %q, got %q",
			first.Classification, second.PreviousClassification)
	}
}

func TestAnalyzeArea_FreshCacheRunsLearners(t *testing.T) {
	a := testAgent(t)
	area := registeredArea(t, a)
	ctx := context.Background()
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	err := a.store.ReplaceOccupiedIntervals(ctx, area.ID, []store.OccupiedInterval{
		{Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour)},
	}, now)
	if err != nil {
		t.Fatalf("replace occupied intervals: %v", err)
	}

	report := a.analyzeArea(ctx, area, now)

	if hasError(report.Errors, "occupied cache stale") {
		t.Errorf("fresh cache must not be reported stale: %v", report.Errors)
	}
	if len(report.Sensors) != len(area.Sensors) {
		t.Errorf("expected a report per sensor, got %d of %d", len(report.Sensors), len(area.Sensors))
	}
}
