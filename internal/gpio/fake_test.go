package gpio

import (
	"math"
	"testing"
	"time"
)

func TestFakeRangerSequence(t *testing.T) {
	f := NewFakeRanger(5, 50, 7)

	want := []float64{5, 50, 7, 7}
	for i, w := range want {
		if got := f.MeasureDistance(); got != w {
			t.Errorf("sample %d: got %v, want %v", i, got, w)
		}
	}
	if f.Calls() != 4 {
		t.Errorf("calls: got %d, want 4", f.Calls())
	}
	if !f.Exhausted() {
		t.Error("expected script to be exhausted")
	}
}

func TestFakeRangerNoSamples(t *testing.T) {
	f := NewFakeRanger()
	if got := f.MeasureDistance(); !math.IsInf(got, 1) {
		t.Errorf("expected NoEcho, got %v", got)
	}
}

func TestFakeRangerSetRewinds(t *testing.T) {
	f := NewFakeRanger(1, 2)
	f.MeasureDistance()
	f.MeasureDistance()

	f.Set(9, 8)
	if f.Exhausted() {
		t.Error("should not be exhausted after Set")
	}
	if got := f.MeasureDistance(); got != 9 {
		t.Errorf("after Set: got %v, want 9", got)
	}
}

func TestFakeRangerClose(t *testing.T) {
	f := NewFakeRanger(1)
	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestNoEchoIsFar(t *testing.T) {
	if !(NoEcho > 1e9) {
		t.Errorf("NoEcho should compare as far, got %v", NoEcho)
	}
}

func TestEchoToCentimeters(t *testing.T) {
	tests := []struct {
		pulse time.Duration
		want  float64
	}{
		{0, 0},
		{583 * time.Microsecond, 9.99845},
		{time.Millisecond, 17.15},
		{20 * time.Millisecond, 343},
	}
	for _, tt := range tests {
		got := EchoToCentimeters(tt.pulse)
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("EchoToCentimeters(%v): got %v, want %v", tt.pulse, got, tt.want)
		}
	}
}
