// Package audio provides the frame sources the monitor captures from.
package audio

import (
	"context"
	"errors"

	"snore-monitor-service/internal/service/signal"
)

// DefaultFrameSamples is the capture block size (64 ms at 16 kHz).
const DefaultFrameSamples = 1024

// ErrFormat is returned for audio the pipeline cannot read.
var ErrFormat = errors.New("unsupported audio format")

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("audio source closed")

// Source produces fixed-size PCM16 mono frames.
type Source interface {
	// Open acquires the device or file. A failure here means no session starts.
	Open(ctx context.Context) error

	// Read blocks until the next frame is available. io.EOF ends the stream.
	Read(ctx context.Context) (signal.Frame, error)

	// Close releases the device or file. Safe to call more than once.
	Close() error
}
