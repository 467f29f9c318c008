package engine

import (
	"testing"
	"time"
)

func TestObserve_EdgeDetection(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	decay := NewDecayState(5*time.Minute, 0, nil, nil)
	r, err := NewSensorRecord("binary_sensor.hall_motion", CategoryMotion, 0, nil, nil, decay)
	if err != nil {
		t.Fatalf("NewSensorRecord: %v", err)
	}

	if changed := r.Observe("on", nil, start); !changed {
		t.Error("expected first activation to report change")
	}
	if changed := r.Observe("on", nil, start.Add(time.Second)); changed {
		t.Error("repeated active state should not report change")
	}

	// Going inactive starts the decay tail, so effective evidence
	// holds and no change is reported.
	if changed := r.Observe("off", nil, start.Add(2*time.Second)); changed {
		t.Error("active-to-decay transition should not change effective evidence")
	}
	if !r.Decay.IsDecaying() {
		t.Error("expected decay tail after deactivation")
	}

	// Re-activation cancels the tail.
	r.Observe("on", nil, start.Add(3*time.Second))
	if r.Decay.IsDecaying() {
		t.Error("expected decay cancelled on re-activation")
	}
}

func TestObserve_NumericRange(t *testing.T) {
	r, err := NewSensorRecord("sensor.tv_power", CategoryAppliance, 0.4,
		nil, &ActiveRange{Min: 10, Max: 1e9}, nil)
	if err != nil {
		t.Fatalf("NewSensorRecord: %v", err)
	}

	v := 42.0
	if !r.Active("", &v) {
		t.Error("expected 42.0 inside [10, 1e9] to be active")
	}
	low := 3.0
	if r.Active("", &low) {
		t.Error("expected 3.0 below range to be inactive")
	}
	if r.Active("on", nil) {
		t.Error("range sensor without a value must be inactive")
	}
}

func TestNewSensorRecord_Validation(t *testing.T) {
	if _, err := NewSensorRecord("x", CategoryMotion, 1.5, nil, nil, nil); err == nil {
		t.Error("expected error for weight above 1")
	}
	if _, err := NewSensorRecord("x", Category("fridge"), 0, nil, nil, nil); err == nil {
		t.Error("expected error for unknown category")
	}
	if _, err := NewSensorRecord("x", CategoryMotion, 0.5,
		[]string{"on"}, &ActiveRange{Min: 0, Max: 1}, nil); err == nil {
		t.Error("expected error for both active forms set")
	}
}

func TestSetLikelihoods_RejectsBoundary(t *testing.T) {
	r, err := NewSensorRecord("x", CategoryMotion, 0, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewSensorRecord: %v", err)
	}

	if err := r.SetLikelihoods(1.0, 0.02); err == nil {
		t.Error("expected rejection of probTrue = 1.0")
	}
	if err := r.SetLikelihoods(0.9, 0.0); err == nil {
		t.Error("expected rejection of probFalse = 0.0")
	}
	if err := r.SetLikelihoods(0.9, 0.02); err != nil {
		t.Errorf("valid likelihoods rejected: %v", err)
	}
}
