package config

import (
	"sync/atomic"
	"time"
)

// Detection defaults.
const (
	DefaultSensitivity = 3
	DefaultMinDuration = 500 * time.Millisecond
)

// SensitivityThresholds maps sensitivity level to RMS threshold. Lower level
// means more sensitive.
var SensitivityThresholds = map[int]float64{
	1: 400,
	2: 600,
	3: 800,
	4: 1000,
	5: 1200,
}

// Settings are the user-adjustable detection parameters. Each field is an
// independent atomic: writers are the API and CLI, the reader is the capture
// worker on every frame. No cross-field consistency is provided.
type Settings struct {
	sensitivity   atomic.Int32
	minDurationMs atomic.Int64
}

// NewSettings returns settings initialized from the given values.
func NewSettings(sensitivity int, minDuration time.Duration) *Settings {
	s := &Settings{}
	s.SetSensitivity(sensitivity)
	s.SetMinDuration(minDuration)
	return s
}

// Sensitivity returns the current level, or the default if unset.
func (s *Settings) Sensitivity() int {
	level := int(s.sensitivity.Load())
	if _, ok := SensitivityThresholds[level]; !ok {
		return DefaultSensitivity
	}
	return level
}

// SetSensitivity stores level coerced into 1..5.
func (s *Settings) SetSensitivity(level int) {
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	s.sensitivity.Store(int32(level))
}

// RMSThreshold returns the threshold for the current level. A lookup miss
// falls back to the default level's threshold.
func (s *Settings) RMSThreshold() float64 {
	if v, ok := SensitivityThresholds[int(s.sensitivity.Load())]; ok {
		return v
	}
	return SensitivityThresholds[DefaultSensitivity]
}

// MinDuration returns how long a snore must persist, or the default if unset.
func (s *Settings) MinDuration() time.Duration {
	ms := s.minDurationMs.Load()
	if ms <= 0 {
		return DefaultMinDuration
	}
	return time.Duration(ms) * time.Millisecond
}

// SetMinDuration stores d. Non-positive values reset to the default.
func (s *Settings) SetMinDuration(d time.Duration) {
	if d <= 0 {
		d = DefaultMinDuration
	}
	s.minDurationMs.Store(d.Milliseconds())
}

// SettingsSnapshot is a point-in-time view for reporting.
type SettingsSnapshot struct {
	Sensitivity   int     `json:"sensitivity"`
	RMSThreshold  float64 `json:"rmsThreshold"`
	MinDurationMs int64   `json:"minDurationMs"`
}

// Snapshot reads every field once.
func (s *Settings) Snapshot() SettingsSnapshot {
	return SettingsSnapshot{
		Sensitivity:   s.Sensitivity(),
		RMSThreshold:  s.RMSThreshold(),
		MinDurationMs: s.MinDuration().Milliseconds(),
	}
}
