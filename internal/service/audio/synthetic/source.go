// Package synthetic provides a deterministic audio source for demos and tests
// without a microphone. It simulates a night of silence, snores and speech.
package synthetic

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"snore-monitor-service/internal/service/audio"
	"snore-monitor-service/internal/service/signal"
)

// Kind labels a simulated sound.
type Kind int

const (
	KindSilence Kind = iota
	KindSnore
	KindSpeech
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSilence:
		return "SILENCE"
	case KindSnore:
		return "SNORE"
	case KindSpeech:
		return "SPEECH"
	default:
		return "UNKNOWN"
	}
}

// Segment is a stretch of one tone.
type Segment struct {
	Kind      Kind
	Duration  time.Duration
	Frequency float64 // Hz
	Amplitude float64 // peak, in sample units
}

// Snore is a loud low-frequency tone: high RMS, low zero-crossing rate.
func Snore(d time.Duration) Segment {
	return Segment{Kind: KindSnore, Duration: d, Frequency: 120, Amplitude: 3000}
}

// Speech is a loud high-frequency tone: high RMS, high zero-crossing rate.
func Speech(d time.Duration) Segment {
	return Segment{Kind: KindSpeech, Duration: d, Frequency: 2500, Amplitude: 3000}
}

// Silence is a faint hiss well under every threshold.
func Silence(d time.Duration) Segment {
	return Segment{Kind: KindSilence, Duration: d, Frequency: 3000, Amplitude: 40}
}

// DefaultNight is one cycle of the simulated night.
var DefaultNight = []Segment{
	Silence(3 * time.Second),
	Snore(1500 * time.Millisecond),
	Silence(6 * time.Second),
	Speech(time.Second),
	Silence(2 * time.Second),
}

// Options configure a Source.
type Options struct {
	SampleRate   int
	FrameSamples int
	Segments     []Segment
	// Loops is how many times the segments play. 0 repeats forever.
	Loops int
	// Realtime paces frames at the audio rate.
	Realtime bool
	// Base is the timestamp of the first sample. Zero means the open time.
	Base time.Time
}

// Source implements audio.Source with generated tones.
type Source struct {
	opts  Options
	total int64 // samples per loop

	mu      sync.Mutex
	opened  bool
	closed  bool
	offset  int64
	started time.Time
}

// New creates a synthetic source.
func New(opts Options) *Source {
	if opts.SampleRate <= 0 {
		opts.SampleRate = signal.SampleRateHz
	}
	if opts.FrameSamples <= 0 {
		opts.FrameSamples = audio.DefaultFrameSamples
	}
	if len(opts.Segments) == 0 {
		opts.Segments = DefaultNight
	}
	var total int64
	for _, seg := range opts.Segments {
		total += samplesFor(seg.Duration, opts.SampleRate)
	}
	return &Source{opts: opts, total: total}
}

func samplesFor(d time.Duration, rate int) int64 {
	return int64(d) * int64(rate) / int64(time.Second)
}

// Open starts the clock.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.started = time.Now()
	if s.opts.Base.IsZero() {
		s.opts.Base = s.started
	}
	return nil
}

// KindAt returns the segment kind playing at sample offset n.
func (s *Source) KindAt(n int64) Kind {
	seg, _ := s.segmentAt(n)
	return seg.Kind
}

func (s *Source) segmentAt(n int64) (Segment, int64) {
	if s.total == 0 {
		return Segment{}, 0
	}
	pos := n % s.total
	for _, seg := range s.opts.Segments {
		l := samplesFor(seg.Duration, s.opts.SampleRate)
		if pos < l {
			return seg, pos
		}
		pos -= l
	}
	return s.opts.Segments[len(s.opts.Segments)-1], 0
}

// Read generates the next frame.
func (s *Source) Read(ctx context.Context) (signal.Frame, error) {
	s.mu.Lock()
	if s.closed || !s.opened {
		s.mu.Unlock()
		return signal.Frame{}, audio.ErrClosed
	}
	if s.opts.Loops > 0 && s.offset >= s.total*int64(s.opts.Loops) {
		s.mu.Unlock()
		return signal.Frame{}, io.EOF
	}

	start := s.offset
	n := int64(s.opts.FrameSamples)
	if s.opts.Loops > 0 {
		if rest := s.total*int64(s.opts.Loops) - start; rest < n {
			n = rest
		}
	}
	samples := make([]int16, n)
	rate := float64(s.opts.SampleRate)
	for i := range samples {
		seg, pos := s.segmentAt(start + int64(i))
		v := seg.Amplitude * math.Sin(2*math.Pi*seg.Frequency*float64(pos)/rate)
		samples[i] = int16(v)
	}
	s.offset += n

	at := s.opts.Base.Add(time.Duration(start) * time.Second / time.Duration(s.opts.SampleRate))
	due := s.started.Add(time.Duration(s.offset) * time.Second / time.Duration(s.opts.SampleRate))
	realtime := s.opts.Realtime
	s.mu.Unlock()

	if realtime {
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return signal.Frame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return signal.NewFrame(samples, at)
}

// Close stops the source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
