package learning

import (
	"log/slog"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

const (
	globalPriorFloor = 0.01
	globalPriorCeil  = 0.99

	timePriorFloor = 0.1
	timePriorCeil  = 0.9

	// staleEvidenceGrace caps how far past the last observed interval
	// the learning period may extend. Counting unobserved time as
	// unoccupied would deflate the prior after a sensor outage.
	staleEvidenceGrace = time.Hour
)

// GlobalPriorResult is the outcome of one global-prior computation.
// Persist is false when the period was degenerate and the floor value
// must not supersede the stored prior.
type GlobalPriorResult struct {
	Value         float64
	PeriodStart   time.Time
	PeriodEnd     time.Time
	OccupiedTotal time.Duration
	IntervalCount int
	Persist       bool
}

// ComputeGlobalPrior derives the area's baseline occupancy probability
// as the occupied fraction of the learning period. Intervals must be
// merged and timeout-extended. The period ends at now unless the last
// interval ended more than an hour ago, in which case it ends there.
func ComputeGlobalPrior(occupied []store.OccupiedInterval, periodStart, now time.Time, logger *slog.Logger) GlobalPriorResult {
	if logger == nil {
		logger = slog.Default()
	}

	merged := MergeOverlapping(occupied)

	periodEnd := now
	if n := len(merged); n > 0 {
		lastEnd := merged[n-1].End
		if now.Sub(lastEnd) > staleEvidenceGrace {
			periodEnd = lastEnd
		}
	}

	result := GlobalPriorResult{
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		IntervalCount: len(merged),
	}

	period := periodEnd.Sub(periodStart)
	if period <= 0 {
		logger.Warn("Non-positive prior learning period, falling back to floor",
			"period_start", periodStart,
			"period_end", periodEnd)
		result.Value = globalPriorFloor
		result.Persist = false
		return result
	}

	window := []store.OccupiedInterval{{Start: periodStart, End: periodEnd}}
	occupiedTotal := overlapDuration(merged, window)

	result.OccupiedTotal = occupiedTotal
	result.Value = clamp(occupiedTotal.Seconds()/period.Seconds(), globalPriorFloor, globalPriorCeil)
	result.Persist = true
	return result
}

// ComputeTimePriors partitions the occupied intervals into day-of-week
// by hour buckets along wall-clock hour boundaries and derives each
// bucket's occupancy probability from the distinct ISO weeks that
// contributed to it. Buckets with no contributing weeks are omitted.
func ComputeTimePriors(occupied []store.OccupiedInterval, loc *time.Location, computedAt time.Time) []store.TimePrior {
	if loc == nil {
		loc = time.UTC
	}

	type bucketAccum struct {
		seconds float64
		weeks   map[int]struct{}
	}
	buckets := make(map[int]*bucketAccum)

	for _, iv := range MergeOverlapping(occupied) {
		cursor := iv.Start.In(loc)
		end := iv.End.In(loc)
		for cursor.Before(end) {
			// Truncate on absolute time would misplace the boundary in
			// fractional-offset zones; build it from wall-clock fields.
			y, m, d := cursor.Date()
			hourEnd := time.Date(y, m, d, cursor.Hour(), 0, 0, 0, loc).Add(time.Hour)
			chunkEnd := hourEnd
			if chunkEnd.After(end) {
				chunkEnd = end
			}

			key := int(cursor.Weekday())*24 + cursor.Hour()
			acc := buckets[key]
			if acc == nil {
				acc = &bucketAccum{weeks: make(map[int]struct{})}
				buckets[key] = acc
			}
			acc.seconds += chunkEnd.Sub(cursor).Seconds()
			year, week := cursor.ISOWeek()
			acc.weeks[year*100+week] = struct{}{}

			cursor = chunkEnd
		}
	}

	priors := make([]store.TimePrior, 0, len(buckets))
	for key, acc := range buckets {
		weeks := len(acc.weeks)
		if weeks == 0 {
			continue
		}
		priors = append(priors, store.TimePrior{
			DayOfWeek:   key / 24,
			Hour:        key % 24,
			Value:       clamp(acc.seconds/(float64(weeks)*3600), timePriorFloor, timePriorCeil),
			WeeksOfData: weeks,
			ComputedAt:  computedAt,
		})
	}
	return priors
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
