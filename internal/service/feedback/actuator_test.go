package feedback

import (
	"context"
	"sync"
	"testing"
	"time"
)

type blockingVibrator struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	done    chan struct{}
}

func (v *blockingVibrator) Vibrate(ctx context.Context, p Pattern) error {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	<-v.release
	v.done <- struct{}{}
	return nil
}

func (v *blockingVibrator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func TestDefaultPattern(t *testing.T) {
	if DefaultPattern.Total() != 4000*time.Millisecond {
		t.Errorf("expected 4000ms pattern, got %v", DefaultPattern.Total())
	}
	pulses := DefaultPattern.Pulses()
	if len(pulses) != 3 {
		t.Fatalf("expected 3 pulses, got %d", len(pulses))
	}
	for _, p := range pulses {
		if p != time.Second {
			t.Errorf("expected 1s pulse, got %v", p)
		}
	}
}

func TestActuator_Cooldown(t *testing.T) {
	a := New(nil, nil, DefaultBuffer)
	if a.Cooldown() != 5000*time.Millisecond {
		t.Errorf("expected 5000ms cooldown, got %v", a.Cooldown())
	}

	a = New(nil, Pattern{200 * time.Millisecond}, 0)
	if a.Cooldown() != 200*time.Millisecond {
		t.Errorf("expected 200ms cooldown, got %v", a.Cooldown())
	}
}

func TestActuator_TriggerIsIdempotentWhilePlaying(t *testing.T) {
	v := &blockingVibrator{release: make(chan struct{}), done: make(chan struct{}, 1)}
	a := New(v, DefaultPattern, DefaultBuffer)

	a.Trigger()
	deadline := time.Now().Add(time.Second)
	for v.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	a.Trigger()
	a.Trigger()

	if !a.Playing() {
		t.Error("expected actuator to be playing")
	}
	if v.Calls() != 1 {
		t.Errorf("expected 1 vibration while playing, got %d", v.Calls())
	}

	close(v.release)
	<-v.done

	deadline = time.Now().Add(time.Second)
	for a.Playing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if a.Playing() {
		t.Fatal("expected playback to finish")
	}

	a.Trigger()
	<-v.done
	if v.Calls() != 2 {
		t.Errorf("expected a second vibration after the first finished, got %d", v.Calls())
	}
}

func TestNoop_NeverFails(t *testing.T) {
	a := New(Noop{}, DefaultPattern, DefaultBuffer)
	a.Trigger()
	if err := (Noop{}).Vibrate(context.Background(), DefaultPattern); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecVibrator_EmptyCommand(t *testing.T) {
	if err := (ExecVibrator{}).Vibrate(context.Background(), DefaultPattern); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestLogVibrator_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (LogVibrator{}).Vibrate(ctx, DefaultPattern); err == nil {
		t.Error("expected context error")
	}
}
