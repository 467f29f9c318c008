package coordinator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harmaja/presence-engine/internal/engine"
	"github.com/harmaja/presence-engine/pkg/config"
)

// Purpose-derived decay half-lives, applied when the area config does
// not set one explicitly.
var purposeHalfLife = map[string]time.Duration{
	"sleeping":    15 * time.Minute,
	"social":      10 * time.Minute,
	"working":     15 * time.Minute,
	"passthrough": 2 * time.Minute,
}

const (
	defaultHalfLife      = 10 * time.Minute
	defaultSleepHalfLife = time.Hour
	defaultThreshold     = 0.5
)

// AreaState is one area's runtime state in the coordinator's arena.
// Components refer to areas by index into the arena, never by owning
// pointer, so there are no reference cycles to manage.
type AreaState struct {
	mu sync.Mutex

	Index     int
	ID        int64
	Name      string
	Purpose   string
	Threshold float64

	Sensors map[string]*engine.SensorRecord

	// Learned priors, refreshed by the analysis cycle.
	GlobalPrior float64
	TimePriors  map[int]float64 // dow*24+hour -> value

	// Last fusion output.
	Probability float64
	Occupied    bool
	ComputedAt  time.Time
}

// newAreaState builds the runtime state for one configured area. The
// sleep window function is only wired for the sleeping purpose.
func newAreaState(index int, ac config.AreaConfig, sleepWindow engine.SleepWindowFunc,
	logger *slog.Logger) (*AreaState, error) {

	threshold := ac.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("area %s: threshold %v outside (0,1)", ac.Name, threshold)
	}

	halfLife := time.Duration(ac.DecayHalfLifeSec) * time.Second
	if halfLife <= 0 {
		if hl, ok := purposeHalfLife[ac.Purpose]; ok {
			halfLife = hl
		} else {
			halfLife = defaultHalfLife
		}
	}

	var sleepHalfLife time.Duration
	if ac.Purpose == "sleeping" {
		sleepHalfLife = time.Duration(ac.SleepDecayHalfLifeSec) * time.Second
		if sleepHalfLife <= 0 {
			sleepHalfLife = defaultSleepHalfLife
		}
	} else {
		sleepWindow = nil
	}

	a := &AreaState{
		Index:       index,
		Name:        ac.Name,
		Purpose:     ac.Purpose,
		Threshold:   threshold,
		Sensors:     make(map[string]*engine.SensorRecord, len(ac.Sensors)),
		GlobalPrior: 0.5,
		TimePriors:  make(map[int]float64),
		Probability: 0.5,
	}

	for _, sc := range ac.Sensors {
		var rng *engine.ActiveRange
		if sc.ActiveMin != nil || sc.ActiveMax != nil {
			if sc.ActiveMin == nil || sc.ActiveMax == nil {
				return nil, fmt.Errorf("area %s sensor %s: active_min and active_max must be set together",
					ac.Name, sc.Entity)
			}
			rng = &engine.ActiveRange{Min: *sc.ActiveMin, Max: *sc.ActiveMax}
		}

		decay := engine.NewDecayState(halfLife, sleepHalfLife, sleepWindow, logger)
		record, err := engine.NewSensorRecord(sc.Entity, engine.Category(sc.Category),
			sc.Weight, sc.ActiveStates, rng, decay)
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", ac.Name, err)
		}
		a.Sensors[sc.Entity] = record
	}

	return a, nil
}

// timePriorAt returns the bucket prior for the wall-clock moment, 0.5
// when the bucket has no learned value.
func (a *AreaState) timePriorAt(t time.Time, loc *time.Location) float64 {
	local := t.In(loc)
	key := int(local.Weekday())*24 + local.Hour()
	if v, ok := a.TimePriors[key]; ok {
		return v
	}
	return 0.5
}

// recompute runs one fusion pass over the area's sensors and updates
// the cached probability. It returns true when the occupied flag
// crossed the threshold.
func (a *AreaState) recompute(now time.Time, loc *time.Location) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	prior := engine.CombinePriors(a.GlobalPrior, a.timePriorAt(now, loc), engine.TimePriorWeight)

	evidence := make([]engine.SensorEvidence, 0, len(a.Sensors))
	for _, s := range a.Sensors {
		evidence = append(evidence, s.Snapshot(now))
	}

	a.Probability = engine.Posterior(prior, evidence)
	a.ComputedAt = now

	// Strict comparison: the neutral 0.5 against the default 0.5
	// threshold must not read as occupied.
	occupied := a.Probability > a.Threshold
	changed := occupied != a.Occupied
	a.Occupied = occupied
	return changed
}

// hasDecayingSensor reports whether any sensor is within its decay
// tail, which is what makes periodic recomputation worthwhile.
func (a *AreaState) hasDecayingSensor() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.Sensors {
		if s.Decay != nil && s.Decay.IsDecaying() {
			return true
		}
	}
	return false
}

// motionEntities lists the area's motion sensors, the only category
// occupied intervals derive from.
func (a *AreaState) motionEntities() []string {
	var out []string
	for entity, s := range a.Sensors {
		if s.Category == engine.CategoryMotion {
			out = append(out, entity)
		}
	}
	return out
}

// motionActiveStates is the union of active states across the area's
// motion sensors.
func (a *AreaState) motionActiveStates() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range a.Sensors {
		if s.Category != engine.CategoryMotion {
			continue
		}
		for _, st := range s.ActiveStates {
			if _, ok := seen[st]; ok {
				continue
			}
			seen[st] = struct{}{}
			out = append(out, st)
		}
	}
	return out
}
