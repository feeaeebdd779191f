package session

import (
	"sync"
	"testing"
	"time"
)

var t0 = time.UnixMilli(1773450000000).UTC()

func TestTracker_AddEvent(t *testing.T) {
	tr := NewTracker(1, t0)

	for i, amp := range []float64{900, 1100, 950} {
		if got := tr.AddEvent(amp); got != i+1 {
			t.Errorf("event %d: expected count %d, got %d", i, i+1, got)
		}
	}

	snap := tr.Snapshot()
	if snap.SnoreCount != 3 {
		t.Errorf("expected 3 snores, got %d", snap.SnoreCount)
	}
	if snap.MaxAmplitude != 1100 {
		t.Errorf("expected max 1100, got %v", snap.MaxAmplitude)
	}
}

func TestTracker_ObserveFrameKeepsLatest(t *testing.T) {
	tr := NewTracker(1, t0)
	tr.ObserveFrame(t0.Add(2 * time.Second))
	tr.ObserveFrame(t0.Add(time.Second))

	if got := tr.Snapshot().LastFrameAt; !got.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("expected latest frame time, got %v", got)
	}
}

func TestSnapshot_EndTime(t *testing.T) {
	tests := []struct {
		name      string
		lastFrame time.Time
		now       time.Time
		want      time.Time
	}{
		{"now wins", t0.Add(time.Minute), t0.Add(2 * time.Minute), t0.Add(2 * time.Minute)},
		{"last frame wins", t0.Add(3 * time.Minute), t0.Add(time.Minute), t0.Add(3 * time.Minute)},
		{"never before start", time.Time{}, t0, t0.Add(time.Millisecond)},
		{"clock behind start", time.Time{}, t0.Add(-time.Hour), t0.Add(time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{StartedAt: t0, LastFrameAt: tt.lastFrame}
			if got := snap.EndTime(tt.now); !got.Equal(tt.want) {
				t.Errorf("EndTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_ConcurrentReadWrite(t *testing.T) {
	tr := NewTracker(1, t0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			tr.AddEvent(float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = tr.Snapshot()
		}
	}()
	wg.Wait()

	if tr.Snapshot().SnoreCount != 500 {
		t.Errorf("expected 500 events, got %d", tr.Snapshot().SnoreCount)
	}
}
