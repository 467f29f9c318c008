package learning

import (
	"sort"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

// MergeOverlapping sorts spans by start and merges any pair where the
// next span starts at or before the current merged end. Merging an
// already-merged set returns it unchanged.
func MergeOverlapping(spans []store.OccupiedInterval) []store.OccupiedInterval {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]store.OccupiedInterval, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []store.OccupiedInterval{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// ApplyMotionTimeout segments each merged interval by its motion
// coverage. Gaps between consecutive motion spans shorter than the
// timeout are bridged; after the last motion span of a run the
// interval extends by the timeout, clamped to the merged interval's
// end. The result is re-merged.
func ApplyMotionTimeout(merged, motion []store.OccupiedInterval, timeout time.Duration) []store.OccupiedInterval {
	if timeout <= 0 || len(motion) == 0 {
		return MergeOverlapping(merged)
	}

	sortedMotion := MergeOverlapping(motion)

	var out []store.OccupiedInterval
	for _, m := range merged {
		subs := clipSpans(sortedMotion, m.Start, m.End)
		if len(subs) == 0 {
			out = append(out, m)
			continue
		}

		cur := subs[0]
		for _, s := range subs[1:] {
			if s.Start.Sub(cur.End) < timeout {
				if s.End.After(cur.End) {
					cur.End = s.End
				}
				continue
			}
			out = append(out, extendClamped(cur, timeout, m.End))
			cur = s
		}
		out = append(out, extendClamped(cur, timeout, m.End))
	}
	return MergeOverlapping(out)
}

// DeriveOccupiedIntervals turns raw motion intervals into the occupied
// set: every motion span holds occupancy for the timeout past its end,
// overlapping evidence merges into one interval.
func DeriveOccupiedIntervals(motion []store.Interval, timeout time.Duration) []store.OccupiedInterval {
	if len(motion) == 0 {
		return nil
	}

	raw := make([]store.OccupiedInterval, 0, len(motion))
	extended := make([]store.OccupiedInterval, 0, len(motion))
	for _, iv := range motion {
		if !iv.End.After(iv.Start) {
			continue
		}
		raw = append(raw, store.OccupiedInterval{Start: iv.Start, End: iv.End})
		extended = append(extended, store.OccupiedInterval{Start: iv.Start, End: iv.End.Add(timeout)})
	}

	merged := MergeOverlapping(extended)
	return ApplyMotionTimeout(merged, raw, timeout)
}

func extendClamped(s store.OccupiedInterval, timeout time.Duration, limit time.Time) store.OccupiedInterval {
	end := s.End.Add(timeout)
	if end.After(limit) {
		end = limit
	}
	if end.Before(s.End) {
		end = s.End
	}
	return store.OccupiedInterval{Start: s.Start, End: end}
}

// clipSpans returns the parts of spans that fall inside [from, to],
// assuming spans are sorted and non-overlapping.
func clipSpans(spans []store.OccupiedInterval, from, to time.Time) []store.OccupiedInterval {
	var out []store.OccupiedInterval
	for _, s := range spans {
		if !s.End.After(from) || !s.Start.Before(to) {
			continue
		}
		start, end := s.Start, s.End
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		out = append(out, store.OccupiedInterval{Start: start, End: end})
	}
	return out
}

// overlapDuration is the total time the two span sets coincide. Both
// inputs must be merged (sorted, non-overlapping).
func overlapDuration(a, b []store.OccupiedInterval) time.Duration {
	var total time.Duration
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if end.After(start) {
			total += end.Sub(start)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return total
}

// totalDuration sums span lengths. Negative spans contribute nothing.
func totalDuration(spans []store.OccupiedInterval) time.Duration {
	var total time.Duration
	for _, s := range spans {
		if s.End.After(s.Start) {
			total += s.End.Sub(s.Start)
		}
	}
	return total
}

// Contains reports whether t falls inside any of the merged spans.
func Contains(spans []store.OccupiedInterval, t time.Time) bool {
	for _, s := range spans {
		if !t.Before(s.Start) && t.Before(s.End) {
			return true
		}
	}
	return false
}
