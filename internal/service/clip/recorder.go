// Package clip records short audio clips after a snore event.
package clip

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/service/audio"
)

// ErrEmpty is reported when a clip finished before any audio arrived.
var ErrEmpty = errors.New("clip has no audio")

const frameBuffer = 64

// Request describes the snore that triggered a clip.
type Request struct {
	SessionID        int64
	RelativeMs       int64
	TriggerAmplitude float64
}

// DoneFunc receives the finished clip's metadata or the failure.
type DoneFunc func(rec models.Recording, err error)

type capture struct {
	req       Request
	path      string
	frames    chan []int16
	remaining int
}

// Recorder writes the next Duration of audio after a trigger into a WAV file.
// Feed is called from the capture loop and never blocks on disk.
type Recorder struct {
	dir        string
	duration   time.Duration
	sampleRate int

	mu      sync.Mutex
	active  *capture
	writers sync.WaitGroup
}

// New creates a recorder writing into dir.
func New(dir string, duration time.Duration, sampleRate int) *Recorder {
	if duration <= 0 {
		duration = 20 * time.Second
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Recorder{dir: dir, duration: duration, sampleRate: sampleRate}
}

// Dir returns the recordings directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Capture starts a clip. A clip still recording is ended with the audio it
// has so far and reported through its own done; restarted is true then.
// done is called from the writer goroutine once the file is complete.
func (r *Recorder) Capture(req Request, done DoneFunc) (restarted bool, err error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return false, fmt.Errorf("create recordings dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev := r.active; prev != nil {
		close(prev.frames)
		r.active = nil
		restarted = true
		log.Debug().
			Int64("sessionId", prev.req.SessionID).
			Int64("relativeMs", prev.req.RelativeMs).
			Msg("Clip cut short by a new snore")
	}

	c := &capture{
		req:       req,
		path:      filepath.Join(r.dir, fmt.Sprintf("snore_%d_%s.wav", req.SessionID, uuid.NewString())),
		frames:    make(chan []int16, frameBuffer),
		remaining: int(r.duration.Seconds() * float64(r.sampleRate)),
	}
	r.active = c
	r.writers.Add(1)
	go r.write(c, done)

	log.Debug().
		Int64("sessionId", req.SessionID).
		Str("path", c.path).
		Msg("Clip capture started")
	return restarted, nil
}

// Busy reports whether a clip is being recorded.
func (r *Recorder) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Feed hands a frame to the active clip, if any. Samples are copied.
func (r *Recorder) Feed(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.active
	if c == nil || len(samples) == 0 {
		return
	}

	n := len(samples)
	if n > c.remaining {
		n = c.remaining
	}
	buf := make([]int16, n)
	copy(buf, samples[:n])

	select {
	case c.frames <- buf:
		c.remaining -= n
	default:
		log.Warn().Int64("sessionId", c.req.SessionID).Msg("Clip writer behind, frame dropped")
	}

	if c.remaining <= 0 {
		close(c.frames)
		r.active = nil
	}
}

// Finish ends an in-flight clip with the audio captured so far and waits for
// every clip file to be written and reported.
func (r *Recorder) Finish() {
	r.mu.Lock()
	if c := r.active; c != nil {
		close(c.frames)
		r.active = nil
	}
	r.mu.Unlock()

	r.writers.Wait()
}

func (r *Recorder) write(c *capture, done DoneFunc) {
	defer r.writers.Done()

	rec, err := r.writeFile(c)
	if err != nil {
		if rmErr := os.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", c.path).Msg("Failed to remove partial clip")
		}
	}
	if done != nil {
		done(rec, err)
	}
}

func (r *Recorder) writeFile(c *capture) (models.Recording, error) {
	f, err := os.Create(c.path)
	if err != nil {
		drain(c.frames)
		return models.Recording{}, fmt.Errorf("create clip: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", c.path).Msg("Failed to close clip")
		}
	}()

	if err := audio.WriteWavHeader(f, r.sampleRate, 0); err != nil {
		drain(c.frames)
		return models.Recording{}, err
	}

	w := bufio.NewWriter(f)
	var written int
	var writeErr error
	for frame := range c.frames {
		if writeErr != nil {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, frame); err != nil {
			writeErr = err
			continue
		}
		written += len(frame)
	}
	if writeErr != nil {
		return models.Recording{}, fmt.Errorf("write clip: %w", writeErr)
	}
	if err := w.Flush(); err != nil {
		return models.Recording{}, fmt.Errorf("flush clip: %w", err)
	}
	if written == 0 {
		return models.Recording{}, ErrEmpty
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.Recording{}, err
	}
	if err := audio.WriteWavHeader(f, r.sampleRate, uint32(written*2)); err != nil {
		return models.Recording{}, err
	}

	return models.Recording{
		SessionID:        c.req.SessionID,
		RelativeMs:       c.req.RelativeMs,
		FilePath:         c.path,
		DurationMs:       int64(written) * 1000 / int64(r.sampleRate),
		TriggerAmplitude: c.req.TriggerAmplitude,
	}, nil
}

func drain(ch <-chan []int16) {
	for range ch {
	}
}
