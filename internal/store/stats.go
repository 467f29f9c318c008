package store

import (
	"math"
	"sort"
)

// summary holds the descriptive statistics carried by aggregate rows.
type summary struct {
	Count  int
	Total  float64
	Min    float64
	Max    float64
	Avg    float64
	Median float64
	Std    float64
}

// summarize computes descriptive statistics for a set of values.
func summarize(values []float64) summary {
	if len(values) == 0 {
		return summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	total := 0.0
	for _, v := range sorted {
		total += v
	}
	mean := total / float64(len(sorted))

	variance := 0.0
	for _, v := range sorted {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(sorted))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return summary{
		Count:  len(sorted),
		Total:  total,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Avg:    mean,
		Median: median,
		Std:    math.Sqrt(variance),
	}
}

// combine merges summaries from already-aggregated sources. Count,
// total, min, max and avg are exact; median and std are count-weighted
// blends of the source summaries, not recomputations.
func combine(parts []summary) summary {
	out := summary{Min: math.Inf(1), Max: math.Inf(-1)}
	weightedMedian := 0.0
	weightedStd := 0.0

	for _, p := range parts {
		if p.Count == 0 {
			continue
		}
		out.Count += p.Count
		out.Total += p.Total
		if p.Min < out.Min {
			out.Min = p.Min
		}
		if p.Max > out.Max {
			out.Max = p.Max
		}
		weightedMedian += p.Median * float64(p.Count)
		weightedStd += p.Std * float64(p.Count)
	}

	if out.Count == 0 {
		return summary{}
	}
	out.Avg = out.Total / float64(out.Count)
	out.Median = weightedMedian / float64(out.Count)
	out.Std = weightedStd / float64(out.Count)
	return out
}
