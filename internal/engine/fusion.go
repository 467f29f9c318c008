package engine

import (
	"math"
)

// TimePriorWeight is the blend weight of the time-of-day prior against
// the global prior when both are combined in log-odds space.
const TimePriorWeight = 0.2

// priorFloor and priorCeil bound priors away from certainty so the
// log-odds transform stays finite.
const (
	priorFloor = 0.01
	priorCeil  = 0.99
)

// SensorEvidence is one sensor's contribution to a fusion pass,
// captured at a single instant.
type SensorEvidence struct {
	Weight      float64
	ProbTrue    float64
	ProbFalse   float64
	Evidence    bool
	Decaying    bool
	DecayFactor float64
}

func clampPrior(p float64) float64 {
	if p < priorFloor {
		return priorFloor
	}
	if p > priorCeil {
		return priorCeil
	}
	return p
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// CombinePriors blends the global and time-of-day priors in log-odds
// space, weighting the time prior by timeWeight. Inputs are clamped to
// [0.01, 0.99] first. Equal priors pass through unchanged.
func CombinePriors(global, timePrior, timeWeight float64) float64 {
	global = clampPrior(global)
	timePrior = clampPrior(timePrior)
	if global == timePrior {
		return global
	}
	blended := (1-timeWeight)*logit(global) + timeWeight*logit(timePrior)
	return sigmoid(blended)
}

// Posterior fuses the combined prior with the given sensor evidence
// using a naive Bayes update over two hypotheses. Sensors with a
// non-positive weight or likelihoods outside (0,1) are ignored. A
// sensor with neither active evidence nor a decay tail contributes the
// neutral likelihood 0.5. A decaying sensor's likelihoods are pulled
// toward 0.5 by its decay factor. If no usable sensor remains the
// combined prior is returned as-is.
func Posterior(prior float64, sensors []SensorEvidence) float64 {
	prior = clampPrior(prior)

	logOcc := math.Log(prior)
	logUnocc := math.Log(1 - prior)
	used := 0

	for _, s := range sensors {
		if s.Weight <= 0 {
			continue
		}
		if s.ProbTrue <= 0 || s.ProbTrue >= 1 || s.ProbFalse <= 0 || s.ProbFalse >= 1 {
			continue
		}

		pTrue := s.ProbTrue
		pFalse := s.ProbFalse
		switch {
		case s.Evidence:
			// Active evidence uses the learned likelihoods directly.
		case s.Decaying:
			pTrue = 0.5 + (pTrue-0.5)*s.DecayFactor
			pFalse = 0.5 + (pFalse-0.5)*s.DecayFactor
		default:
			// No evidence and no decay tail: neutral, no information.
			continue
		}

		logOcc += s.Weight * math.Log(pTrue)
		logUnocc += s.Weight * math.Log(pFalse)
		used++
	}

	if used == 0 {
		return prior
	}

	// Normalize in log space to avoid underflow on long sensor lists.
	maxLog := math.Max(logOcc, logUnocc)
	occ := math.Exp(logOcc - maxLog)
	unocc := math.Exp(logUnocc - maxLog)
	total := occ + unocc
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return prior
	}
	return occ / total
}
