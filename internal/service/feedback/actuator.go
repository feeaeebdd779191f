// Package feedback drives the haptic response to a confirmed snore.
package feedback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Pattern alternates on and off durations, starting with "on".
type Pattern []time.Duration

// DefaultPattern is three one-second pulses separated by half-second pauses.
var DefaultPattern = Pattern{
	1000 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// DefaultBuffer is added to the pattern length to form the cooldown.
const DefaultBuffer = 1000 * time.Millisecond

// Total returns the wall-clock length of the pattern.
func (p Pattern) Total() time.Duration {
	var total time.Duration
	for _, d := range p {
		total += d
	}
	return total
}

// Pulses returns only the "on" durations.
func (p Pattern) Pulses() []time.Duration {
	pulses := make([]time.Duration, 0, (len(p)+1)/2)
	for i := 0; i < len(p); i += 2 {
		pulses = append(pulses, p[i])
	}
	return pulses
}

// Vibrator plays a pattern. Implementations block until the pattern is done
// or ctx is cancelled.
type Vibrator interface {
	Vibrate(ctx context.Context, pattern Pattern) error
}

// Actuator issues the feedback pattern and reports the cooldown it implies.
type Actuator struct {
	vibrator Vibrator
	pattern  Pattern
	buffer   time.Duration
	playing  atomic.Bool
	logger   zerolog.Logger
}

// New creates an Actuator. A nil vibrator makes Trigger a no-op.
func New(vibrator Vibrator, pattern Pattern, buffer time.Duration) *Actuator {
	if len(pattern) == 0 {
		pattern = DefaultPattern
	}
	if buffer < 0 {
		buffer = DefaultBuffer
	}
	if vibrator == nil {
		vibrator = Noop{}
	}
	return &Actuator{
		vibrator: vibrator,
		pattern:  pattern,
		buffer:   buffer,
		logger:   log.With().Str("component", "feedback").Logger(),
	}
}

// Cooldown is how long detection must stay suppressed after a trigger.
func (a *Actuator) Cooldown() time.Duration {
	return a.pattern.Total() + a.buffer
}

// Trigger starts the pattern in the background and returns immediately.
// A trigger while the pattern is still playing is ignored.
func (a *Actuator) Trigger() {
	if !a.playing.CompareAndSwap(false, true) {
		a.logger.Debug().Msg("Feedback already playing, trigger ignored")
		return
	}

	go func() {
		defer a.playing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), a.Cooldown())
		defer cancel()
		if err := a.vibrator.Vibrate(ctx, a.pattern); err != nil {
			a.logger.Warn().Err(err).Msg("Vibration failed")
		}
	}()
}

// Playing reports whether a pattern is in progress.
func (a *Actuator) Playing() bool {
	return a.playing.Load()
}
