package store

import "time"

// Record types map one-to-one onto tables. Timestamps are carried as
// time.Time in UTC and persisted as naive UTC unix seconds.

// Area is one monitored area.
type Area struct {
	ID        int64
	Name      string
	Purpose   string
	Threshold float64
	CreatedAt time.Time
}

// Sensor is one monitored sensor within an area, including its
// currently learned likelihoods.
type Sensor struct {
	ID          int64
	AreaID      int64
	Entity      string
	Category    string
	Weight      float64
	ProbTrue    float64
	ProbFalse   float64
	LastUpdated time.Time
}

// Interval is a contiguous period a sensor held one reported state.
type Interval struct {
	ID       int64
	Entity   string
	State    string
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// IntervalAggregate summarizes promoted intervals for one period.
type IntervalAggregate struct {
	ID            int64
	Entity        string
	State         string
	Period        string // daily, weekly, monthly
	PeriodStart   time.Time
	PeriodEnd     time.Time
	IntervalCount int
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	AvgDuration   time.Duration
	MedianDuration time.Duration
	StdDuration   time.Duration
	CreatedAt     time.Time
}

// OccupiedInterval is a merged, timeout-extended period the area was
// occupied, derived exclusively from motion sensors.
type OccupiedInterval struct {
	Start time.Time
	End   time.Time
}

// GlobalPrior is the area-wide baseline occupancy probability.
type GlobalPrior struct {
	AreaID         int64
	Value          float64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	SampleDuration time.Duration
	IntervalCount  int
	ComputedAt     time.Time
}

// TimePrior is the baseline occupancy probability for one
// (day-of-week, hour) bucket. Day of week 0 is Sunday, matching
// time.Weekday.
type TimePrior struct {
	AreaID      int64
	DayOfWeek   int
	Hour        int
	Value       float64
	WeeksOfData int
	ComputedAt  time.Time
}

// NumericSample is one reading from a numeric environmental sensor.
type NumericSample struct {
	ID     int64
	Entity string
	Value  float64
	At     time.Time
}

// NumericAggregate summarizes promoted numeric samples for one period.
type NumericAggregate struct {
	ID          int64
	Entity      string
	Period      string // hourly, weekly
	PeriodStart time.Time
	PeriodEnd   time.Time
	SampleCount int
	Min         float64
	Max         float64
	Avg         float64
	Median      float64
	Std         float64
	CreatedAt   time.Time
}

// Correlation is a learned per-sensor result: likelihoods for binary
// sensors, a Pearson coefficient for numeric sensors.
type Correlation struct {
	ID             int64
	AreaID         int64
	Entity         string
	Kind           string // binary, numeric
	ProbTrue       *float64
	ProbFalse      *float64
	Coefficient    *float64
	Classification string
	Confidence     float64
	SampleCount    int
	AnalysisStart  time.Time
	AnalysisEnd    time.Time
	ComputedAt     time.Time
}
