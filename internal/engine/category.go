package engine

import "fmt"

// Category is the closed set of sensor input categories. Each category
// carries static defaults for weight, likelihoods and what counts as
// active evidence.
type Category string

const (
	CategoryMotion        Category = "motion"
	CategoryDoor          Category = "door"
	CategoryWindow        Category = "window"
	CategoryMedia         Category = "media"
	CategoryAppliance     Category = "appliance"
	CategoryEnvironmental Category = "environmental"
)

// ActiveRange defines the numeric band a reading must fall into to
// count as active evidence.
type ActiveRange struct {
	Min float64
	Max float64
}

// Defaults are the per-category starting values used until the learner
// supersedes the likelihoods. Exactly one of ActiveStates and
// ActiveRange is set per category.
type Defaults struct {
	Weight       float64
	ProbTrue     float64
	ProbFalse    float64
	ActiveStates []string
	ActiveRange  *ActiveRange
}

var categoryDefaults = map[Category]Defaults{
	CategoryMotion: {
		Weight:       0.85,
		ProbTrue:     0.85,
		ProbFalse:    0.04,
		ActiveStates: []string{"on", "detected"},
	},
	CategoryDoor: {
		Weight:       0.3,
		ProbTrue:     0.2,
		ProbFalse:    0.02,
		ActiveStates: []string{"open", "on"},
	},
	CategoryWindow: {
		Weight:       0.2,
		ProbTrue:     0.15,
		ProbFalse:    0.03,
		ActiveStates: []string{"open", "on"},
	},
	CategoryMedia: {
		Weight:       0.7,
		ProbTrue:     0.6,
		ProbFalse:    0.05,
		ActiveStates: []string{"playing", "paused", "on"},
	},
	CategoryAppliance: {
		Weight:       0.4,
		ProbTrue:     0.4,
		ProbFalse:    0.07,
		ActiveStates: []string{"on", "running", "active"},
	},
	CategoryEnvironmental: {
		Weight:    0.3,
		ProbTrue:  0.09,
		ProbFalse: 0.01,
		// Illuminance-style band; per-sensor configuration overrides this.
		ActiveRange: &ActiveRange{Min: 10, Max: 1e9},
	},
}

// DefaultsFor returns the static defaults for a category.
func DefaultsFor(cat Category) (Defaults, error) {
	d, ok := categoryDefaults[cat]
	if !ok {
		return Defaults{}, fmt.Errorf("unknown sensor category: %s", cat)
	}
	return d, nil
}

// ValidCategory reports whether cat is a member of the closed set.
func ValidCategory(cat Category) bool {
	_, ok := categoryDefaults[cat]
	return ok
}

// IsNumeric reports whether the category carries numeric readings
// rather than discrete states.
func (c Category) IsNumeric() bool {
	return c == CategoryEnvironmental
}
