package config

import (
	"sync"
	"testing"
	"time"
)

func TestSettings_Thresholds(t *testing.T) {
	tests := []struct {
		level     int
		wantLevel int
		want      float64
	}{
		{1, 1, 400},
		{2, 2, 600},
		{3, 3, 800},
		{4, 4, 1000},
		{5, 5, 1200},
		{0, 1, 400},
		{-3, 1, 400},
		{9, 5, 1200},
	}

	for _, tt := range tests {
		s := NewSettings(tt.level, 0)
		if s.Sensitivity() != tt.wantLevel {
			t.Errorf("level %d: expected sensitivity %d, got %d", tt.level, tt.wantLevel, s.Sensitivity())
		}
		if s.RMSThreshold() != tt.want {
			t.Errorf("level %d: expected threshold %v, got %v", tt.level, tt.want, s.RMSThreshold())
		}
	}
}

func TestSettings_ZeroValueUsesDefaults(t *testing.T) {
	var s Settings
	if s.RMSThreshold() != 800 {
		t.Errorf("expected default threshold 800, got %v", s.RMSThreshold())
	}
	if s.Sensitivity() != DefaultSensitivity {
		t.Errorf("expected default sensitivity, got %d", s.Sensitivity())
	}
	if s.MinDuration() != 500*time.Millisecond {
		t.Errorf("expected default min duration, got %v", s.MinDuration())
	}
}

func TestSettings_MinDuration(t *testing.T) {
	s := NewSettings(3, 1200*time.Millisecond)
	if s.MinDuration() != 1200*time.Millisecond {
		t.Errorf("expected 1200ms, got %v", s.MinDuration())
	}
	s.SetMinDuration(-time.Second)
	if s.MinDuration() != DefaultMinDuration {
		t.Errorf("expected reset to default, got %v", s.MinDuration())
	}
}

func TestSettings_Snapshot(t *testing.T) {
	s := NewSettings(4, 700*time.Millisecond)
	snap := s.Snapshot()
	if snap.Sensitivity != 4 || snap.RMSThreshold != 1000 || snap.MinDurationMs != 700 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestSettings_ConcurrentAccess(t *testing.T) {
	s := NewSettings(3, DefaultMinDuration)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(level int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetSensitivity(level%5 + 1)
				s.SetMinDuration(time.Duration(100+j) * time.Millisecond)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				thr := s.RMSThreshold()
				if thr < 400 || thr > 1200 {
					t.Errorf("threshold out of range: %v", thr)
				}
				_ = s.MinDuration()
			}
		}()
	}
	wg.Wait()
}
