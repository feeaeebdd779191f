package signal

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewFrame_RejectsEmpty(t *testing.T) {
	if _, err := NewFrame(nil, time.Now()); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := NewFrame([]int16{}, time.Now()); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame for empty slice, got %v", err)
	}

	f, err := NewFrame([]int16{1, 2, 3}, time.Unix(10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Samples) != 3 || !f.At.Equal(time.Unix(10, 0)) {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestFrame_Duration(t *testing.T) {
	f := Frame{Samples: make([]int16, 1600)}
	if f.Duration() != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", f.Duration())
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"constant", []int16{800, 800, 800, 800}, 800},
		{"alternating", []int16{1000, -1000, 1000, -1000}, 1000},
		{"mixed", []int16{3, 4}, math.Sqrt(12.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestRMS_ScalesLinearly(t *testing.T) {
	base := []int16{120, -340, 560, -780, 900, -10, 0, 15000}
	doubled := make([]int16, len(base))
	for i, s := range base {
		doubled[i] = s * 2
	}

	r1 := RMS(base)
	r2 := RMS(doubled)
	if math.Abs(r2-2*r1) > 1e-6 {
		t.Errorf("expected doubled RMS %v, got %v", 2*r1, r2)
	}

	// Idempotent: same input, same output.
	if RMS(base) != r1 {
		t.Error("RMS is not deterministic")
	}
}

func TestZCR(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []int16{5}, 0},
		{"no crossings", []int16{1, 2, 3, 4}, 0},
		{"every pair", []int16{1, -1, 1, -1, 1}, 1},
		{"zero counts as positive", []int16{-1, 0, 1, 0}, 1.0 / 3.0},
		{"one crossing", []int16{-5, -3, 2, 7, 9}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZCR(tt.samples)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ZCR(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestMeasure(t *testing.T) {
	m := Measure([]int16{1000, -1000, 1000, -1000})
	if m.RMS != 1000 {
		t.Errorf("expected RMS 1000, got %v", m.RMS)
	}
	if m.ZCR != 1 {
		t.Errorf("expected ZCR 1, got %v", m.ZCR)
	}
}
