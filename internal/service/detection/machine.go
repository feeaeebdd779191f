package detection

import (
	"math"
	"time"

	"snore-monitor-service/internal/service/signal"
)

// Defaults used when a parameter is missing or malformed.
const (
	DefaultRMSThreshold = 800.0
	DefaultZCRThreshold = 0.15
	DefaultMinDuration  = 500 * time.Millisecond
	DefaultCooldown     = 5000 * time.Millisecond
	DefaultWarmUp       = 3000 * time.Millisecond
)

// Params are the thresholds a single Step is evaluated against.
type Params struct {
	RMSThreshold float64
	ZCRThreshold float64
	MinDuration  time.Duration
	Cooldown     time.Duration
}

// DefaultParams returns the documented default thresholds.
func DefaultParams() Params {
	return Params{
		RMSThreshold: DefaultRMSThreshold,
		ZCRThreshold: DefaultZCRThreshold,
		MinDuration:  DefaultMinDuration,
		Cooldown:     DefaultCooldown,
	}
}

// normalized replaces malformed values with defaults. A zero cooldown is
// legal and means detection resumes on the next frame.
func (p Params) normalized() Params {
	if p.RMSThreshold <= 0 || math.IsNaN(p.RMSThreshold) || math.IsInf(p.RMSThreshold, 0) {
		p.RMSThreshold = DefaultRMSThreshold
	}
	if p.ZCRThreshold <= 0 || math.IsNaN(p.ZCRThreshold) {
		p.ZCRThreshold = DefaultZCRThreshold
	}
	if p.MinDuration <= 0 {
		p.MinDuration = DefaultMinDuration
	}
	if p.Cooldown < 0 {
		p.Cooldown = DefaultCooldown
	}
	return p
}

// Step is the transition function. It is pure: the caller threads the
// returned State into the next call.
//
//	COOLDOWN, now < until            → COOLDOWN          SUPPRESSED
//	RMS < threshold                  → IDLE              SILENCE
//	ZCR >= zcr threshold             → IDLE              NOISE
//	IDLE (candidate)                 → TRACKING(now)     CANDIDATE
//	TRACKING(t0), now-t0 > min       → COOLDOWN(now+cd)  SNORE
//	TRACKING(t0), otherwise          → TRACKING(t0)      CANDIDATE
//
// An expired COOLDOWN behaves as IDLE.
func Step(s State, m signal.Metrics, now time.Time, p Params) (State, Class) {
	p = p.normalized()

	if s.Phase == PhaseCooldown {
		if now.Before(s.Until) {
			return s, ClassSuppressed
		}
		s = Idle()
	}

	if m.RMS < p.RMSThreshold {
		return Idle(), ClassSilence
	}
	if m.ZCR >= p.ZCRThreshold {
		return Idle(), ClassNoise
	}

	if s.Phase == PhaseTracking {
		if now.Sub(s.Since) > p.MinDuration {
			return Cooldown(now.Add(p.Cooldown)), ClassSnore
		}
		return s, ClassCandidate
	}
	return Tracking(now), ClassCandidate
}

// Thresholds supplies the user-adjustable parameters. Implementations are
// read once per frame, so changes apply to the very next frame.
type Thresholds interface {
	RMSThreshold() float64
	MinDuration() time.Duration
}

// Options are the fixed parameters of a Detector.
type Options struct {
	ZCRThreshold float64
	Cooldown     time.Duration
	WarmUp       time.Duration
}

// DefaultOptions returns the documented fixed parameters.
func DefaultOptions() Options {
	return Options{
		ZCRThreshold: DefaultZCRThreshold,
		Cooldown:     DefaultCooldown,
		WarmUp:       DefaultWarmUp,
	}
}

// Decision is the outcome of processing one frame.
type Decision struct {
	Class     Class
	Event     bool
	Threshold float64
	State     State
}

// Detector owns the detection state of one monitoring session.
// It is not safe for concurrent use; the capture worker is its only caller.
type Detector struct {
	thresholds Thresholds
	opts       Options
	startedAt  time.Time
	state      State
}

// NewDetector creates a detector for a session that started at startedAt.
func NewDetector(thresholds Thresholds, opts Options, startedAt time.Time) *Detector {
	return &Detector{
		thresholds: thresholds,
		opts:       opts,
		startedAt:  startedAt,
		state:      Idle(),
	}
}

// Process classifies one frame captured at now.
func (d *Detector) Process(m signal.Metrics, now time.Time) Decision {
	p := d.params().normalized()

	// Suppress start-up transients.
	if now.Sub(d.startedAt) < d.opts.WarmUp {
		d.state = Idle()
		return Decision{Class: ClassSuppressed, Threshold: p.RMSThreshold, State: d.state}
	}

	next, class := Step(d.state, m, now, p)
	d.state = next
	return Decision{
		Class:     class,
		Event:     class == ClassSnore,
		Threshold: p.RMSThreshold,
		State:     next,
	}
}

// State returns the current detection state.
func (d *Detector) State() State {
	return d.state
}

// Reset returns the detector to IDLE for a session starting at startedAt.
func (d *Detector) Reset(startedAt time.Time) {
	d.startedAt = startedAt
	d.state = Idle()
}

func (d *Detector) params() Params {
	p := Params{
		ZCRThreshold: d.opts.ZCRThreshold,
		Cooldown:     d.opts.Cooldown,
	}
	if d.thresholds != nil {
		p.RMSThreshold = d.thresholds.RMSThreshold()
		p.MinDuration = d.thresholds.MinDuration()
	}
	return p
}
