package engine

import (
	"log/slog"
	"math"
	"time"
)

// decayFloor is the factor below which decaying evidence is treated as
// fully gone and the state auto-resets.
const decayFloor = 0.05

// SleepWindowFunc reports whether t falls inside the sleep window for
// the sensor's area. A nil function means no sleep window applies.
type SleepWindowFunc func(t time.Time) bool

// DecayState tracks the freshness of the most recent true-to-false
// transition for one sensor. While decaying, the factor follows
// 0.5^(age/halfLife) until it crosses decayFloor.
type DecayState struct {
	halfLife      time.Duration
	sleepHalfLife time.Duration
	inSleepWindow SleepWindowFunc

	decaying   bool
	decayStart time.Time

	logger *slog.Logger
}

// NewDecayState builds a decay state with the given half-life. The
// sleep half-life applies inside the sleep window; zero means no
// sleep-specific half-life.
func NewDecayState(halfLife, sleepHalfLife time.Duration, inSleepWindow SleepWindowFunc, logger *slog.Logger) *DecayState {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecayState{
		halfLife:      halfLife,
		sleepHalfLife: sleepHalfLife,
		inSleepWindow: inSleepWindow,
		logger:        logger,
	}
}

// StartDecay begins the decay tail at the given time. Calling it while
// already decaying is a no-op; the original start timestamp stands.
func (d *DecayState) StartDecay(at time.Time) {
	if d.decaying {
		return
	}
	d.decaying = true
	d.decayStart = at
}

// StopDecay clears the decay state. Idempotent.
func (d *DecayState) StopDecay() {
	d.decaying = false
	d.decayStart = time.Time{}
}

// IsDecaying reports whether the decay tail is active.
func (d *DecayState) IsDecaying() bool {
	return d.decaying
}

// effectiveHalfLife selects the sleep half-life inside the sleep
// window, the regular one outside it.
func (d *DecayState) effectiveHalfLife(now time.Time) time.Duration {
	if d.sleepHalfLife > 0 && d.inSleepWindow != nil && d.inSleepWindow(now) {
		return d.sleepHalfLife
	}
	return d.halfLife
}

// Factor returns the current decay factor in [0,1]. While not decaying
// it returns 1.0. A non-positive half-life is treated as instantaneous
// decay; a decay start in the future yields 1.0 (no negative aging).
// Once the factor drops below decayFloor the state auto-resets and 0
// is returned.
func (d *DecayState) Factor(now time.Time) float64 {
	if !d.decaying {
		return 1.0
	}

	halfLife := d.effectiveHalfLife(now)
	if halfLife <= 0 {
		d.logger.Warn("Non-positive decay half-life, treating as instantaneous decay",
			"half_life", halfLife)
		d.StopDecay()
		return 0
	}

	age := now.Sub(d.decayStart)
	if age < 0 {
		return 1.0
	}

	factor := math.Pow(0.5, age.Seconds()/halfLife.Seconds())
	if factor < decayFloor {
		d.StopDecay()
		return 0
	}
	return factor
}
