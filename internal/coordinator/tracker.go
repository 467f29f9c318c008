package coordinator

import (
	"sync"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
)

type openSpan struct {
	state string
	start time.Time
}

// intervalTracker turns the stream of sensor state reports into closed
// state intervals and buffered numeric samples. Buffers drain into the
// store during the analysis cycle's sync step; an open span closes
// only when the state actually changes.
type intervalTracker struct {
	mu      sync.Mutex
	open    map[string]openSpan
	closed  []store.Interval
	samples []store.NumericSample
}

func newIntervalTracker() *intervalTracker {
	return &intervalTracker{
		open: make(map[string]openSpan),
	}
}

// Observe records a state report. A state change closes the previous
// span into the buffer; repeats of the current state are ignored.
func (t *intervalTracker) Observe(entity, state string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.open[entity]
	if ok && prev.state == state {
		return
	}
	if ok && at.After(prev.start) {
		t.closed = append(t.closed, store.Interval{
			Entity:   entity,
			State:    prev.state,
			Start:    prev.start,
			End:      at,
			Duration: at.Sub(prev.start),
		})
	}
	t.open[entity] = openSpan{state: state, start: at}
}

// Sample buffers one numeric reading.
func (t *intervalTracker) Sample(entity string, value float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, store.NumericSample{Entity: entity, Value: value, At: at})
}

// Drain empties the closed-interval and sample buffers. Open spans
// stay tracked until their state changes.
func (t *intervalTracker) Drain() ([]store.Interval, []store.NumericSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	intervals := t.closed
	samples := t.samples
	t.closed = nil
	t.samples = nil
	return intervals, samples
}
