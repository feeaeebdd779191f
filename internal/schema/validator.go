// Package schema validates records before they are persisted or applied.
package schema

import (
	"errors"
	"fmt"
	"math"
	"time"

	"snore-monitor-service/internal/models"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid record")

// Sensitivity and duration bounds accepted from users.
const (
	MinSensitivity = 1
	MaxSensitivity = 5
	MinDuration    = 100 * time.Millisecond
	MaxDuration    = 10 * time.Second
)

// SettingsUpdate is a partial change to the runtime detection settings.
type SettingsUpdate struct {
	Sensitivity   *int   `json:"sensitivity,omitempty"`
	MinDurationMs *int64 `json:"minDurationMs,omitempty"`
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the invariants of a record. Unknown types are accepted.
func (v *Validator) Validate(record any) error {
	switch r := record.(type) {
	case models.Session:
		return validateSession(r)
	case models.AmplitudeSample:
		return validateSample(r)
	case models.Recording:
		return validateRecording(r)
	case SettingsUpdate:
		return validateSettings(r)
	default:
		return nil
	}
}

func validateSession(s models.Session) error {
	if s.StartTime.IsZero() {
		return invalid("session start time is missing")
	}
	if s.Finalized() && !s.EndTime.After(s.StartTime) {
		return invalid("session end time %s is not after start time %s", s.EndTime, s.StartTime)
	}
	if s.SnoreCount < 0 {
		return invalid("snore count %d is negative", s.SnoreCount)
	}
	if s.MaxAmplitude < 0 || math.IsNaN(s.MaxAmplitude) {
		return invalid("max amplitude %v is negative", s.MaxAmplitude)
	}
	if s.DurationMinutes < 0 {
		return invalid("duration %d is negative", s.DurationMinutes)
	}
	return nil
}

func validateSample(s models.AmplitudeSample) error {
	if s.SessionID <= 0 {
		return invalid("sample has no session")
	}
	if s.RelativeMs < 0 {
		return invalid("sample timestamp %d is negative", s.RelativeMs)
	}
	if s.Amplitude < 0 || math.IsNaN(s.Amplitude) {
		return invalid("sample amplitude %v is negative", s.Amplitude)
	}
	return nil
}

func validateRecording(r models.Recording) error {
	if r.SessionID <= 0 {
		return invalid("recording has no session")
	}
	if r.FilePath == "" {
		return invalid("recording file path is empty")
	}
	if r.DurationMs <= 0 {
		return invalid("recording duration %d is not positive", r.DurationMs)
	}
	if r.TriggerAmplitude < 0 {
		return invalid("trigger amplitude %v is negative", r.TriggerAmplitude)
	}
	return nil
}

func validateSettings(u SettingsUpdate) error {
	if u.Sensitivity == nil && u.MinDurationMs == nil {
		return invalid("settings update is empty")
	}
	if u.Sensitivity != nil && (*u.Sensitivity < MinSensitivity || *u.Sensitivity > MaxSensitivity) {
		return invalid("sensitivity %d outside %d..%d", *u.Sensitivity, MinSensitivity, MaxSensitivity)
	}
	if u.MinDurationMs != nil {
		d := time.Duration(*u.MinDurationMs) * time.Millisecond
		if d < MinDuration || d > MaxDuration {
			return invalid("min duration %v outside %v..%v", d, MinDuration, MaxDuration)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
