package detection

import (
	"math"
	"testing"
	"time"

	"snore-monitor-service/internal/service/signal"
)

var t0 = time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)

func at(ms int64) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func scenarioParams() Params {
	return Params{
		RMSThreshold: 800,
		ZCRThreshold: 0.15,
		MinDuration:  500 * time.Millisecond,
		Cooldown:     5000 * time.Millisecond,
	}
}

var snoreLike = signal.Metrics{RMS: 900, ZCR: 0.05}

func TestStep_ContinuousSnore(t *testing.T) {
	p := scenarioParams()
	s := Idle()
	var class Class

	s, class = Step(s, snoreLike, at(0), p)
	if s.Phase != PhaseTracking || !s.Since.Equal(at(0)) {
		t.Fatalf("expected TRACKING(0), got %v", s)
	}
	if class != ClassCandidate {
		t.Errorf("expected CANDIDATE, got %v", class)
	}

	events := 0
	for ms := int64(20); ms <= 500; ms += 20 {
		s, class = Step(s, snoreLike, at(ms), p)
		if class == ClassSnore {
			events++
		}
		if ms == 400 && s.Phase != PhaseTracking {
			t.Errorf("expected TRACKING at 400ms, got %v", s)
		}
	}
	if events != 0 {
		t.Fatalf("expected no event before elapsed > 500ms, got %d", events)
	}

	// Elapsed exactly 500ms is not enough; 520ms is.
	s, class = Step(s, snoreLike, at(520), p)
	if class != ClassSnore {
		t.Fatalf("expected SNORE at 520ms, got %v", class)
	}
	if s.Phase != PhaseCooldown {
		t.Fatalf("expected COOLDOWN after event, got %v", s)
	}
	if !s.Until.Equal(at(5520)) {
		t.Errorf("expected cooldown until 5520ms, got %v", s.Until.Sub(t0))
	}
}

func TestStep_SpeechBurstRestartsTimer(t *testing.T) {
	p := scenarioParams()
	s := Idle()
	var class Class

	for ms := int64(0); ms < 300; ms += 20 {
		s, _ = Step(s, snoreLike, at(ms), p)
	}

	s, class = Step(s, signal.Metrics{RMS: 900, ZCR: 0.3}, at(300), p)
	if s.Phase != PhaseIdle || class != ClassNoise {
		t.Fatalf("expected IDLE/NOISE after speech burst, got %v/%v", s, class)
	}

	var firstEvent int64 = -1
	for ms := int64(320); ms <= 1000; ms += 20 {
		s, class = Step(s, snoreLike, at(ms), p)
		if ms == 320 && (s.Phase != PhaseTracking || !s.Since.Equal(at(320))) {
			t.Fatalf("expected tracking restart at 320ms, got %v", s)
		}
		if class == ClassSnore {
			firstEvent = ms
			break
		}
	}
	if firstEvent < 800 {
		t.Fatalf("expected first event no earlier than 800ms, got %d", firstEvent)
	}
	if firstEvent != 840 {
		t.Errorf("expected first event at 840ms (320 + 520), got %d", firstEvent)
	}
}

func TestStep_BelowThresholdAlwaysIdle(t *testing.T) {
	p := scenarioParams()
	starts := []State{Idle(), Tracking(at(0))}
	zcrs := []float64{0, 0.05, 0.14, 0.15, 0.5, 1}

	for _, start := range starts {
		for _, zcr := range zcrs {
			s, class := Step(start, signal.Metrics{RMS: 799.9, ZCR: zcr}, at(1000), p)
			if s.Phase != PhaseIdle {
				t.Errorf("start=%v zcr=%v: expected IDLE, got %v", start, zcr, s)
			}
			if class != ClassSilence {
				t.Errorf("start=%v zcr=%v: expected SILENCE, got %v", start, zcr, class)
			}
		}
	}
}

func TestStep_CooldownSuppressesEvents(t *testing.T) {
	p := scenarioParams()
	s := Cooldown(at(5000))

	for ms := int64(0); ms < 5000; ms += 20 {
		var class Class
		s, class = Step(s, snoreLike, at(ms), p)
		if class != ClassSuppressed {
			t.Fatalf("at %dms expected SUPPRESSED, got %v", ms, class)
		}
		if s.Phase != PhaseCooldown {
			t.Fatalf("at %dms expected COOLDOWN, got %v", ms, s)
		}
	}

	// Window over: classification resumes from IDLE.
	s, class := Step(s, snoreLike, at(5000), p)
	if class != ClassCandidate || s.Phase != PhaseTracking || !s.Since.Equal(at(5000)) {
		t.Errorf("expected fresh TRACKING(5000) after cooldown, got %v/%v", s, class)
	}
}

func TestStep_NoSecondEventBeforeCooldownEnds(t *testing.T) {
	p := scenarioParams()
	s := Idle()
	var events []int64

	for ms := int64(0); ms <= 12000; ms += 20 {
		var class Class
		s, class = Step(s, snoreLike, at(ms), p)
		if class == ClassSnore {
			events = append(events, ms)
		}
	}

	if len(events) < 2 {
		t.Fatalf("expected repeated events for a continuous snore, got %v", events)
	}
	for i := 1; i < len(events); i++ {
		if gap := events[i] - events[i-1]; gap < 5000 {
			t.Errorf("events %d and %d only %dms apart", events[i-1], events[i], gap)
		}
	}
}

func TestStep_MalformedParamsFallBack(t *testing.T) {
	p := Params{RMSThreshold: math.NaN(), ZCRThreshold: -1, MinDuration: 0, Cooldown: -5}

	s, class := Step(Idle(), signal.Metrics{RMS: 799, ZCR: 0.01}, at(0), p)
	if class != ClassSilence || s.Phase != PhaseIdle {
		t.Errorf("expected default threshold 800 to apply, got %v/%v", s, class)
	}

	s, _ = Step(Idle(), snoreLike, at(0), p)
	s, class = Step(s, snoreLike, at(501), p)
	if class != ClassSnore {
		t.Fatalf("expected SNORE with default min duration, got %v", class)
	}
	if !s.Until.Equal(at(501).Add(DefaultCooldown)) {
		t.Errorf("expected default cooldown, got until %v", s.Until.Sub(t0))
	}
}

type fixedThresholds struct {
	rms float64
	min time.Duration
}

func (f *fixedThresholds) RMSThreshold() float64      { return f.rms }
func (f *fixedThresholds) MinDuration() time.Duration { return f.min }

func TestDetector_WarmUpForcesIdle(t *testing.T) {
	th := &fixedThresholds{rms: 800, min: 500 * time.Millisecond}
	d := NewDetector(th, DefaultOptions(), t0)

	for ms := int64(0); ms < 3000; ms += 64 {
		dec := d.Process(snoreLike, at(ms))
		if dec.Class != ClassSuppressed || dec.Event {
			t.Fatalf("at %dms expected SUPPRESSED during warm-up, got %v", ms, dec.Class)
		}
		if d.State().Phase != PhaseIdle {
			t.Fatalf("at %dms expected IDLE during warm-up, got %v", ms, d.State())
		}
	}

	dec := d.Process(snoreLike, at(3000))
	if dec.Class != ClassCandidate {
		t.Errorf("expected CANDIDATE after warm-up, got %v", dec.Class)
	}
}

func TestDetector_ReadsThresholdsEveryFrame(t *testing.T) {
	th := &fixedThresholds{rms: 800, min: 500 * time.Millisecond}
	opts := DefaultOptions()
	opts.WarmUp = 0
	d := NewDetector(th, opts, t0)

	dec := d.Process(signal.Metrics{RMS: 700, ZCR: 0.05}, at(0))
	if dec.Class != ClassSilence || dec.Threshold != 800 {
		t.Fatalf("expected SILENCE at threshold 800, got %v/%v", dec.Class, dec.Threshold)
	}

	// User raises sensitivity mid-session.
	th.rms = 600
	dec = d.Process(signal.Metrics{RMS: 700, ZCR: 0.05}, at(20))
	if dec.Class != ClassCandidate || dec.Threshold != 600 {
		t.Fatalf("expected CANDIDATE at threshold 600, got %v/%v", dec.Class, dec.Threshold)
	}

	th.min = 100 * time.Millisecond
	dec = d.Process(signal.Metrics{RMS: 700, ZCR: 0.05}, at(140))
	if !dec.Event {
		t.Errorf("expected event with shortened min duration, got %v", dec.Class)
	}
	if dec.State.Phase != PhaseCooldown {
		t.Errorf("expected COOLDOWN, got %v", dec.State)
	}
}

func TestDetector_Reset(t *testing.T) {
	th := &fixedThresholds{rms: 800, min: 500 * time.Millisecond}
	opts := DefaultOptions()
	opts.WarmUp = 0
	d := NewDetector(th, opts, t0)

	d.Process(snoreLike, at(0))
	if d.State().Phase != PhaseTracking {
		t.Fatalf("expected TRACKING, got %v", d.State())
	}

	d.Reset(at(10000))
	if d.State().Phase != PhaseIdle {
		t.Errorf("expected IDLE after reset, got %v", d.State())
	}
}

func TestPhaseAndClassStrings(t *testing.T) {
	if PhaseCooldown.String() != "COOLDOWN" {
		t.Errorf("unexpected phase string %q", PhaseCooldown.String())
	}
	if Phase(42).String() != "UNKNOWN(42)" {
		t.Errorf("unexpected unknown phase string %q", Phase(42).String())
	}
	if ClassSuppressed.String() != "SUPPRESSED" {
		t.Errorf("unexpected class string %q", ClassSuppressed.String())
	}
	if Tracking(at(0)).String() != "TRACKING(1773450000000)" {
		t.Errorf("unexpected state string %q", Tracking(at(0)).String())
	}
}
