// Package signal computes per-frame loudness and zero-crossing metrics
// for 16-bit mono PCM audio.
package signal

import (
	"errors"
	"math"
	"time"
)

// SampleRateHz is the capture rate every frame is assumed to use.
const SampleRateHz = 16000

// ErrEmptyFrame is returned when a frame carries no samples.
var ErrEmptyFrame = errors.New("audio frame has no samples")

// Frame is a fixed-size block of signed 16-bit mono samples stamped with
// the wall-clock time it was captured.
type Frame struct {
	Samples []int16
	At      time.Time
}

// NewFrame wraps samples into a Frame. Zero-length input is rejected.
func NewFrame(samples []int16, at time.Time) (Frame, error) {
	if len(samples) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	return Frame{Samples: samples, At: at}, nil
}

// Duration returns how much audio the frame covers at SampleRateHz.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRateHz
}

// Metrics holds the two features the snore classifier looks at.
type Metrics struct {
	RMS float64
	ZCR float64
}

// Measure computes RMS and ZCR for one frame.
func Measure(samples []int16) Metrics {
	return Metrics{
		RMS: RMS(samples),
		ZCR: ZCR(samples),
	}
}

// RMS returns sqrt(mean(sample^2)). An empty slice yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZCR returns the fraction of adjacent sample pairs whose sign differs.
// Zero is treated as non-negative. Frames of length <= 1 yield 0.
func ZCR(samples []int16) float64 {
	if len(samples) <= 1 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
