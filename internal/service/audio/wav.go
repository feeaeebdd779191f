package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"snore-monitor-service/internal/service/signal"
)

// WavInfo describes the PCM stream of a WAV file.
type WavInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int64
}

// Duration returns the playback length of the data chunk.
func (i WavInfo) Duration() time.Duration {
	bytesPerSecond := int64(i.SampleRate * i.Channels * i.BitsPerSample / 8)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(i.DataBytes) * time.Second / time.Duration(bytesPerSecond)
}

// ReadWavHeader walks the RIFF chunks up to the data chunk and leaves r
// positioned at the first sample.
func ReadWavHeader(r io.Reader) (WavInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WavInfo{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WavInfo{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrFormat)
	}

	var info WavInfo
	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WavInfo{}, fmt.Errorf("%w: missing data chunk", ErrFormat)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WavInfo{}, fmt.Errorf("%w: short fmt chunk", ErrFormat)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WavInfo{}, fmt.Errorf("%w: %v", ErrFormat, err)
			}
			if binary.LittleEndian.Uint16(body[0:2]) != 1 {
				return WavInfo{}, fmt.Errorf("%w: not PCM", ErrFormat)
			}
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return WavInfo{}, fmt.Errorf("%w: %v", ErrFormat, err)
				}
			}
		case "data":
			if !haveFmt {
				return WavInfo{}, fmt.Errorf("%w: data before fmt", ErrFormat)
			}
			info.DataBytes = size
			return info, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WavInfo{}, fmt.Errorf("%w: %v", ErrFormat, err)
			}
		}
	}
}

// WavSource replays a PCM16 mono WAV file as capture frames. Frame times are
// the base time plus the sample offset, so detection is deterministic.
type WavSource struct {
	path         string
	frameSamples int
	realtime     bool
	base         time.Time
	now          func() time.Time

	mu      sync.Mutex
	file    *os.File
	reader  *bufio.Reader
	info    WavInfo
	offset  int64 // samples read so far
	started time.Time
	closed  bool
}

// WavOptions configure a WavSource.
type WavOptions struct {
	FrameSamples int
	// Realtime paces frames at the audio rate instead of reading flat out.
	Realtime bool
	// Base is the timestamp of the first sample. Zero means the open time.
	Base time.Time
}

// NewWavSource creates a source for the file at path.
func NewWavSource(path string, opts WavOptions) *WavSource {
	if opts.FrameSamples <= 0 {
		opts.FrameSamples = DefaultFrameSamples
	}
	return &WavSource{
		path:         path,
		frameSamples: opts.FrameSamples,
		realtime:     opts.Realtime,
		base:         opts.Base,
		now:          time.Now,
	}
}

// Open opens the file and validates its header.
func (s *WavSource) Open(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open wav: %w", err)
	}
	r := bufio.NewReader(f)
	info, err := ReadWavHeader(r)
	if err != nil {
		f.Close()
		return err
	}
	if info.Channels != 1 || info.BitsPerSample != 16 {
		f.Close()
		return fmt.Errorf("%w: want 16-bit mono, got %d-bit %d channels", ErrFormat, info.BitsPerSample, info.Channels)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = f
	s.reader = r
	s.info = info
	s.started = s.now()
	if s.base.IsZero() {
		s.base = s.started
	}
	return nil
}

// Info returns the header of the opened file.
func (s *WavSource) Info() WavInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Read returns the next frame. The final frame may be shorter.
func (s *WavSource) Read(ctx context.Context) (signal.Frame, error) {
	s.mu.Lock()
	if s.closed || s.reader == nil {
		s.mu.Unlock()
		return signal.Frame{}, ErrClosed
	}
	remaining := s.info.DataBytes/2 - s.offset
	if remaining <= 0 {
		s.mu.Unlock()
		return signal.Frame{}, io.EOF
	}
	n := int64(s.frameSamples)
	if n > remaining {
		n = remaining
	}
	samples := make([]int16, n)
	err := binary.Read(s.reader, binary.LittleEndian, samples)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		s.mu.Unlock()
		return signal.Frame{}, io.EOF
	}
	if err != nil {
		s.mu.Unlock()
		return signal.Frame{}, fmt.Errorf("read wav: %w", err)
	}
	offset := time.Duration(s.offset) * time.Second / time.Duration(s.info.SampleRate)
	s.offset += n
	at := s.base.Add(offset)
	wallDue := s.started.Add(time.Duration(s.offset) * time.Second / time.Duration(s.info.SampleRate))
	realtime := s.realtime
	s.mu.Unlock()

	if realtime {
		if wait := wallDue.Sub(s.now()); wait > 0 {
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

// Close closes the file.
func (s *WavSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// WavHeaderSize is the size of the canonical header WriteWavHeader emits.
const WavHeaderSize = 44

// WriteWavHeader writes a canonical PCM16 mono header for dataBytes of audio.
func WriteWavHeader(w io.Writer, sampleRate int, dataBytes uint32) error {
	h := make([]byte, WavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], 1)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(h[32:34], 2)
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataBytes)
	_, err := w.Write(h)
	return err
}

// WriteWav writes samples as a PCM16 mono WAV file.
func WriteWav(w io.Writer, sampleRate int, samples []int16) error {
	if err := WriteWavHeader(w, sampleRate, uint32(len(samples)*2)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
