package learning

import (
	"math"
	"sort"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

// Correlation strength thresholds on the absolute Pearson coefficient.
const (
	strongCorrelation = 0.4
	weakCorrelation   = 0.15
)

// Classifications assigned to a numeric sensor's correlation with
// occupancy.
const (
	ClassStrongPositive = "strong_positive"
	ClassStrongNegative = "strong_negative"
	ClassPositive       = "positive"
	ClassNegative       = "negative"
	ClassNone           = "none"
)

// SamplePoint is one numeric reading paired with the moment it
// represents.
type SamplePoint struct {
	At    time.Time
	Value float64
}

// CorrelationResult is the outcome of correlating one numeric sensor
// with the occupied indicator.
type CorrelationResult struct {
	Coefficient    float64
	Classification string
	Confidence     float64
	SampleCount    int

	Insufficient InsufficientReason
}

// OK reports whether the result carries a usable classification. A
// computed but negligible correlation (ClassNone) is OK but not
// actionable.
func (r CorrelationResult) OK() bool {
	return r.Insufficient == ""
}

// BuildSamplePoints merges hour-midpoint samples from hourly
// aggregates with raw recent readings into one chronological series.
// Aggregated hours use the average value at the middle of the hour.
func BuildSamplePoints(aggregates []store.NumericAggregate, raw []store.NumericSample) []SamplePoint {
	points := make([]SamplePoint, 0, len(aggregates)+len(raw))
	for _, a := range aggregates {
		mid := a.PeriodStart.Add(a.PeriodEnd.Sub(a.PeriodStart) / 2)
		points = append(points, SamplePoint{At: mid, Value: a.Avg})
	}
	for _, s := range raw {
		points = append(points, SamplePoint{At: s.At, Value: s.Value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
	return points
}

// ComputeCorrelation calculates the Pearson coefficient between the
// sensor values and a binary occupied indicator. Fewer than minSamples
// points is an insufficient-data outcome; zero variance on either side
// classifies as none with coefficient 0.
func ComputeCorrelation(points []SamplePoint, occupied []store.OccupiedInterval, minSamples int) CorrelationResult {
	var r CorrelationResult
	r.SampleCount = len(points)

	if len(points) < minSamples || minSamples <= 0 {
		r.Insufficient = ReasonTooFewSamples
		return r
	}

	occ := MergeOverlapping(occupied)

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for _, p := range points {
		x := p.Value
		y := 0.0
		if Contains(occ, p.At) {
			y = 1.0
		}
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	cov := sumXY - sumX*sumY/n
	varX := sumXX - sumX*sumX/n
	varY := sumYY - sumY*sumY/n

	denom := math.Sqrt(varX * varY)
	if denom == 0 || math.IsNaN(denom) {
		r.Coefficient = 0
		r.Classification = ClassNone
		return r
	}

	coefficient := cov / denom
	if math.IsNaN(coefficient) || math.IsInf(coefficient, 0) {
		r.Coefficient = 0
		r.Classification = ClassNone
		return r
	}

	r.Coefficient = coefficient
	r.Classification = classify(coefficient)
	r.Confidence = math.Min(1, math.Abs(coefficient)*(1-float64(minSamples)/n))
	return r
}

func classify(r float64) string {
	abs := math.Abs(r)
	switch {
	case abs >= strongCorrelation && r > 0:
		return ClassStrongPositive
	case abs >= strongCorrelation:
		return ClassStrongNegative
	case abs >= weakCorrelation && r > 0:
		return ClassPositive
	case abs >= weakCorrelation:
		return ClassNegative
	default:
		return ClassNone
	}
}
