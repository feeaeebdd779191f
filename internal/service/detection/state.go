// Package detection implements the snore classification state machine.
package detection

import (
	"fmt"
	"time"
)

// Phase is the discriminant of a detection State.
type Phase int

const (
	// PhaseIdle - no snore candidate is being tracked.
	PhaseIdle Phase = iota
	// PhaseTracking - snore-like frames have been seen continuously since State.Since.
	PhaseTracking
	// PhaseCooldown - a snore was confirmed; classification is suppressed until State.Until.
	PhaseCooldown
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseTracking:
		return "TRACKING"
	case PhaseCooldown:
		return "COOLDOWN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// State is the detection state of one monitoring session.
// Only the field matching Phase is meaningful:
//
//	IDLE                      (no payload)
//	TRACKING(Since)           first qualifying frame of the current run
//	COOLDOWN(Until)           end of the suppression window
type State struct {
	Phase Phase
	Since time.Time
	Until time.Time
}

// Idle returns the IDLE state.
func Idle() State {
	return State{Phase: PhaseIdle}
}

// Tracking returns a TRACKING state whose run started at start.
func Tracking(start time.Time) State {
	return State{Phase: PhaseTracking, Since: start}
}

// Cooldown returns a COOLDOWN state lasting until until.
func Cooldown(until time.Time) State {
	return State{Phase: PhaseCooldown, Until: until}
}

// String returns a compact representation for logs.
func (s State) String() string {
	switch s.Phase {
	case PhaseTracking:
		return fmt.Sprintf("TRACKING(%d)", s.Since.UnixMilli())
	case PhaseCooldown:
		return fmt.Sprintf("COOLDOWN(%d)", s.Until.UnixMilli())
	default:
		return s.Phase.String()
	}
}

// Class is the per-frame classification outcome.
type Class int

const (
	// ClassSilence - RMS below the sensitivity threshold.
	ClassSilence Class = iota
	// ClassNoise - loud but high zero-crossing rate (speech, hiss).
	ClassNoise
	// ClassCandidate - snore-like frame, duration not yet satisfied.
	ClassCandidate
	// ClassSnore - snore confirmed on this frame.
	ClassSnore
	// ClassSuppressed - frame ignored (cooldown or warm-up), treated as silence.
	ClassSuppressed
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassSilence:
		return "SILENCE"
	case ClassNoise:
		return "NOISE"
	case ClassCandidate:
		return "CANDIDATE"
	case ClassSnore:
		return "SNORE"
	case ClassSuppressed:
		return "SUPPRESSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", c)
	}
}
