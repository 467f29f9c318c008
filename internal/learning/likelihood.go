package learning

import (
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

const (
	likelihoodFloor = 0.05
	likelihoodCeil  = 0.95

	// motionEvidenceMin is the minimum occupied and unoccupied time a
	// motion sensor needs before its computed likelihoods are trusted
	// over the category defaults.
	motionEvidenceMin = time.Hour
)

// InsufficientReason classifies why a learner could not produce a
// numeric result. These are ordinary outcomes, not errors; the caller
// falls back to configured defaults.
type InsufficientReason string

const (
	ReasonNoOccupiedTime   InsufficientReason = "no_occupied_time"
	ReasonNoUnoccupiedTime InsufficientReason = "no_unoccupied_time"
	ReasonNoSensorData     InsufficientReason = "no_sensor_data"
	ReasonNeverActive      InsufficientReason = "sensor_never_active"
	ReasonNoOverlap        InsufficientReason = "active_never_coincident"
	ReasonShortEvidence    InsufficientReason = "short_motion_evidence"
	ReasonTooFewSamples    InsufficientReason = "too_few_samples"
)

// LikelihoodResult carries the duration-weighted conditional
// likelihoods for one binary sensor, or the reason none could be
// computed.
type LikelihoodResult struct {
	ProbTrue  float64
	ProbFalse float64

	ActiveOccupied   time.Duration
	ActiveUnoccupied time.Duration
	OccupiedTotal    time.Duration
	UnoccupiedTotal  time.Duration

	Insufficient InsufficientReason
}

// OK reports whether the result carries usable likelihoods.
func (r LikelihoodResult) OK() bool {
	return r.Insufficient == ""
}

// ComputeLikelihoods derives P(active|occupied) and P(active|unoccupied)
// for one binary sensor over the analysis window by intersecting the
// sensor's active spans with the occupied set. hasAnyData distinguishes
// a sensor with no recorded intervals at all from one recorded but
// never active. strictMotion applies the motion-sensor rule: computed
// values are only trusted with at least an hour of evidence on both
// sides.
func ComputeLikelihoods(activeSpans, occupied []store.OccupiedInterval,
	windowStart, windowEnd time.Time, hasAnyData, strictMotion bool) LikelihoodResult {

	var r LikelihoodResult

	window := []store.OccupiedInterval{{Start: windowStart, End: windowEnd}}
	windowLen := windowEnd.Sub(windowStart)
	if windowLen <= 0 {
		r.Insufficient = ReasonNoOccupiedTime
		return r
	}

	occ := MergeOverlapping(occupied)
	r.OccupiedTotal = overlapDuration(occ, window)
	r.UnoccupiedTotal = windowLen - r.OccupiedTotal

	if r.OccupiedTotal <= 0 {
		r.Insufficient = ReasonNoOccupiedTime
		return r
	}
	if r.UnoccupiedTotal <= 0 {
		r.Insufficient = ReasonNoUnoccupiedTime
		return r
	}
	if !hasAnyData {
		r.Insufficient = ReasonNoSensorData
		return r
	}

	active := clipSpans(MergeOverlapping(activeSpans), windowStart, windowEnd)
	activeTotal := totalDuration(active)
	if activeTotal <= 0 {
		r.Insufficient = ReasonNeverActive
		return r
	}

	r.ActiveOccupied = overlapDuration(active, occ)
	r.ActiveUnoccupied = activeTotal - r.ActiveOccupied
	if r.ActiveOccupied <= 0 {
		r.Insufficient = ReasonNoOverlap
		return r
	}

	if strictMotion && (r.OccupiedTotal < motionEvidenceMin || r.UnoccupiedTotal < motionEvidenceMin) {
		r.Insufficient = ReasonShortEvidence
		return r
	}

	r.ProbTrue = clamp(r.ActiveOccupied.Seconds()/r.OccupiedTotal.Seconds(), likelihoodFloor, likelihoodCeil)
	r.ProbFalse = clamp(r.ActiveUnoccupied.Seconds()/r.UnoccupiedTotal.Seconds(), likelihoodFloor, likelihoodCeil)
	return r
}

// ActiveSpans extracts the spans where the sensor held one of its
// active states.
func ActiveSpans(intervals []store.Interval, activeStates []string) []store.OccupiedInterval {
	stateSet := make(map[string]struct{}, len(activeStates))
	for _, s := range activeStates {
		stateSet[s] = struct{}{}
	}

	var spans []store.OccupiedInterval
	for _, iv := range intervals {
		if _, ok := stateSet[iv.State]; !ok {
			continue
		}
		spans = append(spans, store.OccupiedInterval{Start: iv.Start, End: iv.End})
	}
	return spans
}
