package learning

import (
	"testing"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

func ts(h, m int) time.Time {
	return time.Date(2026, 3, 16, h, m, 0, 0, time.UTC)
}

func span(start, end time.Time) store.OccupiedInterval {
	return store.OccupiedInterval{Start: start, End: end}
}

func equalSpans(a, b []store.OccupiedInterval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestMergeOverlapping_Basic(t *testing.T) {
	spans := []store.OccupiedInterval{
		span(ts(10, 0), ts(10, 10)),
		span(ts(10, 5), ts(10, 20)),
		span(ts(11, 0), ts(11, 5)),
	}

	got := MergeOverlapping(spans)

	want := []store.OccupiedInterval{
		span(ts(10, 0), ts(10, 20)),
		span(ts(11, 0), ts(11, 5)),
	}
	if !equalSpans(got, want) {
		t.Errorf("merge mismatch: got %v want %v", got, want)
	}
}

func TestMergeOverlapping_Idempotent(t *testing.T) {
	spans := []store.OccupiedInterval{
		span(ts(9, 0), ts(9, 30)),
		span(ts(9, 15), ts(9, 45)),
		span(ts(12, 0), ts(12, 1)),
	}

	once := MergeOverlapping(spans)
	twice := MergeOverlapping(once)

	if !equalSpans(once, twice) {
		t.Errorf("re-merging changed the set: %v vs %v", once, twice)
	}
}

func TestMergeOverlapping_OrderInvariant(t *testing.T) {
	forward := []store.OccupiedInterval{
		span(ts(8, 0), ts(8, 10)),
		span(ts(8, 5), ts(8, 30)),
		span(ts(9, 0), ts(9, 10)),
	}
	reversed := []store.OccupiedInterval{forward[2], forward[1], forward[0]}

	if !equalSpans(MergeOverlapping(forward), MergeOverlapping(reversed)) {
		t.Error("merge result depends on input order")
	}
}

func TestMergeOverlapping_TouchingSpansMerge(t *testing.T) {
	spans := []store.OccupiedInterval{
		span(ts(10, 0), ts(10, 5)),
		span(ts(10, 5), ts(10, 10)),
	}

	got := MergeOverlapping(spans)

	if len(got) != 1 || !got[0].End.Equal(ts(10, 10)) {
		t.Errorf("expected touching spans merged into one, got %v", got)
	}
}

func TestDeriveOccupiedIntervals_BridgesShortGaps(t *testing.T) {
	timeout := 5 * time.Minute
	motion := []store.Interval{
		{Entity: "m1", State: "on", Start: ts(10, 0), End: ts(10, 2)},
		{Entity: "m1", State: "on", Start: ts(10, 5), End: ts(10, 7)},
	}

	got := DeriveOccupiedIntervals(motion, timeout)

	// 3-minute gap is under the timeout: one interval, extended by
	// the timeout past the last motion.
	want := []store.OccupiedInterval{span(ts(10, 0), ts(10, 12))}
	if !equalSpans(got, want) {
		t.Errorf("expected bridged interval %v, got %v", want, got)
	}
}

func TestDeriveOccupiedIntervals_SplitsLongGaps(t *testing.T) {
	timeout := 5 * time.Minute
	motion := []store.Interval{
		{Entity: "m1", State: "on", Start: ts(10, 0), End: ts(10, 2)},
		{Entity: "m1", State: "on", Start: ts(10, 30), End: ts(10, 31)},
	}

	got := DeriveOccupiedIntervals(motion, timeout)

	want := []store.OccupiedInterval{
		span(ts(10, 0), ts(10, 7)),
		span(ts(10, 30), ts(10, 36)),
	}
	if !equalSpans(got, want) {
		t.Errorf("expected split intervals %v, got %v", want, got)
	}
}

func TestDeriveOccupiedIntervals_DropsEmptySpans(t *testing.T) {
	motion := []store.Interval{
		{Entity: "m1", State: "on", Start: ts(10, 0), End: ts(10, 0)},
	}

	if got := DeriveOccupiedIntervals(motion, time.Minute); got != nil {
		t.Errorf("expected nil for zero-length motion, got %v", got)
	}
}

func TestApplyMotionTimeout_NoMotionKeepsInterval(t *testing.T) {
	merged := []store.OccupiedInterval{span(ts(10, 0), ts(10, 30))}

	got := ApplyMotionTimeout(merged, nil, 5*time.Minute)

	if !equalSpans(got, merged) {
		t.Errorf("expected interval kept without motion data, got %v", got)
	}
}

func TestOverlapDuration(t *testing.T) {
	a := []store.OccupiedInterval{
		span(ts(10, 0), ts(10, 30)),
		span(ts(11, 0), ts(11, 30)),
	}
	b := []store.OccupiedInterval{
		span(ts(10, 15), ts(11, 15)),
	}

	if got := overlapDuration(a, b); got != 30*time.Minute {
		t.Errorf("expected 30m overlap, got %v", got)
	}
}
