package engine

import (
	"fmt"
	"time"
)

// SensorRecord is the in-memory working copy of one monitored sensor:
// its configuration, learned likelihoods, current evidence and decay
// state. Fusion reads these records, never the store, within a cycle.
type SensorRecord struct {
	Entity    string
	Category  Category
	Weight    float64
	ProbTrue  float64
	ProbFalse float64

	// Exactly one of ActiveStates and ActiveRange is set.
	ActiveStates []string
	ActiveRange  *ActiveRange

	// Evidence is the boolean derived from the last reported state.
	Evidence  bool
	LastState string
	LastValue *float64
	LastSeen  time.Time

	Decay *DecayState
}

// NewSensorRecord builds a sensor record from its category defaults,
// applying optional overrides for weight and the active definition.
func NewSensorRecord(entity string, cat Category, weight float64,
	activeStates []string, activeRange *ActiveRange, decay *DecayState) (*SensorRecord, error) {

	defaults, err := DefaultsFor(cat)
	if err != nil {
		return nil, err
	}

	if weight == 0 {
		weight = defaults.Weight
	}
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("sensor %s: weight %v outside [0,1]", entity, weight)
	}

	states := activeStates
	rng := activeRange
	if len(states) == 0 && rng == nil {
		states = defaults.ActiveStates
		rng = defaults.ActiveRange
	}
	if len(states) > 0 && rng != nil {
		return nil, fmt.Errorf("sensor %s: both active states and a numeric range defined", entity)
	}
	if len(states) == 0 && rng == nil {
		return nil, fmt.Errorf("sensor %s: no active definition", entity)
	}

	return &SensorRecord{
		Entity:       entity,
		Category:     cat,
		Weight:       weight,
		ProbTrue:     defaults.ProbTrue,
		ProbFalse:    defaults.ProbFalse,
		ActiveStates: states,
		ActiveRange:  rng,
		Decay:        decay,
	}, nil
}

// Active evaluates whether a reported state or numeric value counts as
// active evidence for this sensor.
func (r *SensorRecord) Active(state string, value *float64) bool {
	if r.ActiveRange != nil {
		if value == nil {
			return false
		}
		return *value >= r.ActiveRange.Min && *value <= r.ActiveRange.Max
	}
	for _, s := range r.ActiveStates {
		if s == state {
			return true
		}
	}
	return false
}

// SetLikelihoods installs learned likelihoods, rejecting values
// outside (0,1) exclusive so fusion's log-space math stays finite.
func (r *SensorRecord) SetLikelihoods(probTrue, probFalse float64) error {
	if probTrue <= 0 || probTrue >= 1 || probFalse <= 0 || probFalse >= 1 {
		return fmt.Errorf("sensor %s: likelihoods (%v, %v) outside (0,1)", r.Entity, probTrue, probFalse)
	}
	r.ProbTrue = probTrue
	r.ProbFalse = probFalse
	return nil
}

// Observe updates evidence from a new reading and drives the decay
// state machine. It returns true when effective evidence changed,
// which is what triggers recomputation.
func (r *SensorRecord) Observe(state string, value *float64, at time.Time) bool {
	before := r.EffectiveEvidence()

	active := r.Active(state, value)
	r.LastState = state
	r.LastValue = value
	r.LastSeen = at

	if active {
		r.Evidence = true
		if r.Decay != nil {
			r.Decay.StopDecay()
		}
	} else if r.Evidence {
		// true -> false transition starts the decay tail
		r.Evidence = false
		if r.Decay != nil {
			r.Decay.StartDecay(at)
		}
	}

	return r.EffectiveEvidence() != before
}

// EffectiveEvidence reports whether the sensor currently contributes
// evidence: either actively true or still within its decay tail.
func (r *SensorRecord) EffectiveEvidence() bool {
	if r.Evidence {
		return true
	}
	return r.Decay != nil && r.Decay.IsDecaying()
}

// Snapshot converts the record into the value passed to fusion.
func (r *SensorRecord) Snapshot(now time.Time) SensorEvidence {
	ev := SensorEvidence{
		Weight:    r.Weight,
		ProbTrue:  r.ProbTrue,
		ProbFalse: r.ProbFalse,
		Evidence:  r.Evidence,
	}
	if r.Decay != nil {
		ev.DecayFactor = r.Decay.Factor(now)
		ev.Decaying = r.Decay.IsDecaying()
	}
	return ev
}
