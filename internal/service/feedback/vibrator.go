package feedback

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Noop is used on hosts without a vibration motor.
type Noop struct{}

// Vibrate does nothing.
func (Noop) Vibrate(context.Context, Pattern) error { return nil }

// LogVibrator logs each pulse instead of vibrating. Useful on desktops and
// in development.
type LogVibrator struct{}

// Vibrate logs the pattern and waits for its duration.
func (LogVibrator) Vibrate(ctx context.Context, pattern Pattern) error {
	log.Info().
		Int("pulses", len(pattern.Pulses())).
		Dur("total", pattern.Total()).
		Msg("Vibrating")
	return wait(ctx, pattern.Total())
}

// ExecVibrator runs an external command for every pulse, for example
// "termux-vibrate -f -d {ms}". The {ms} placeholder is replaced by the pulse
// length in milliseconds.
type ExecVibrator struct {
	Command string
}

// Vibrate runs the command for each pulse and sleeps through the pauses.
func (v ExecVibrator) Vibrate(ctx context.Context, pattern Pattern) error {
	parts := strings.Fields(v.Command)
	if len(parts) == 0 {
		return fmt.Errorf("vibrator command is empty")
	}

	for i, d := range pattern {
		if i%2 == 1 {
			if err := wait(ctx, d); err != nil {
				return err
			}
			continue
		}
		args := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			args = append(args, strings.ReplaceAll(p, "{ms}", strconv.FormatInt(d.Milliseconds(), 10)))
		}
		// Commands like termux-vibrate return before the motor stops.
		start := time.Now()
		if err := exec.CommandContext(ctx, parts[0], args...).Run(); err != nil {
			return fmt.Errorf("run vibrator command: %w", err)
		}
		if err := wait(ctx, d-time.Since(start)); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
