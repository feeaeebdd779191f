// Package recorder persists the amplitude timeline and snore clips of one
// monitoring session.
package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability/logging"
	"snore-monitor-service/internal/observability/metrics"
	"snore-monitor-service/internal/service/clip"
)

// Defaults.
const (
	DefaultSampleInterval = 100 * time.Millisecond
	DefaultBatchSize      = 50
	DefaultQueueSize      = 16
	DefaultWriteTimeout   = 10 * time.Second
)

// Store is the persistence the recorder writes to.
type Store interface {
	InsertAmplitudeSamples(ctx context.Context, samples []models.AmplitudeSample) error
	InsertRecording(ctx context.Context, rec models.Recording) (int64, error)
}

// ClipCapturer records audio after a snore. May be nil.
type ClipCapturer interface {
	Capture(req clip.Request, done clip.DoneFunc) (restarted bool, err error)
}

// Options tune sampling and batching.
type Options struct {
	SampleInterval time.Duration
	BatchSize      int
	QueueSize      int
	WriteTimeout   time.Duration
}

// DefaultOptions returns 100 ms sampling and batches of 50.
func DefaultOptions() Options {
	return Options{
		SampleInterval: DefaultSampleInterval,
		BatchSize:      DefaultBatchSize,
		QueueSize:      DefaultQueueSize,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.SampleInterval <= 0 {
		o.SampleInterval = d.SampleInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}

// Recorder samples the amplitude stream at a fixed interval and writes it in
// batches off the capture path. Sample and OnSnore must be called from a
// single goroutine.
type Recorder struct {
	sessionID int64
	start     time.Time
	store     Store
	clips     ClipCapturer
	opts      Options
	queue     *writeQueue
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	lastSample time.Time
	sampled    bool
	pending    []models.AmplitudeSample

	mu       sync.Mutex
	retained []models.AmplitudeSample
	closed   bool
	lost     int
}

// New creates a recorder for a session that started at start.
func New(sessionID int64, start time.Time, store Store, clips ClipCapturer, opts Options) *Recorder {
	opts = opts.normalized()
	return &Recorder{
		sessionID: sessionID,
		start:     start,
		store:     store,
		clips:     clips,
		opts:      opts,
		queue:     newWriteQueue(opts.QueueSize, opts.WriteTimeout),
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithSessionComponent(sessionID, "recorder"),
		pending:   make([]models.AmplitudeSample, 0, opts.BatchSize),
	}
}

// RelativeMs returns the offset of now from the session start, never negative.
func (r *Recorder) RelativeMs(now time.Time) int64 {
	ms := now.Sub(r.start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Sample records an amplitude reading if SampleInterval has passed since the
// last one. It reports whether the reading was kept.
func (r *Recorder) Sample(now time.Time, amplitude float64, isSnore bool) bool {
	if r.sampled && now.Sub(r.lastSample) < r.opts.SampleInterval {
		return false
	}
	r.sampled = true
	r.lastSample = now

	r.pending = append(r.pending, models.AmplitudeSample{
		SessionID:  r.sessionID,
		RelativeMs: r.RelativeMs(now),
		Amplitude:  amplitude,
		IsSnore:    isSnore,
	})
	if len(r.pending) >= r.opts.BatchSize {
		r.flush()
	}
	return true
}

// flush hands retained and pending samples to the write queue.
func (r *Recorder) flush() {
	batch := r.takeAll()
	r.pending = make([]models.AmplitudeSample, 0, r.opts.BatchSize)

	ok := r.queue.submit(func(ctx context.Context) {
		err := r.store.InsertAmplitudeSamples(ctx, batch)
		r.metrics.RecordSampleFlush(err, len(batch))
		if err != nil {
			r.logger.Warn().Err(err).Int("samples", len(batch)).Msg("Sample batch write failed, retaining for retry")
			r.retain(batch)
		}
	})
	if !ok {
		r.metrics.RecordSampleFlush(errors.New("queue full"), len(batch))
		r.logger.Warn().Int("samples", len(batch)).Msg("Write queue full, retaining samples")
		r.retain(batch)
	}
}

// takeAll returns retained samples followed by pending ones in a fresh slice.
func (r *Recorder) takeAll() []models.AmplitudeSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AmplitudeSample, 0, len(r.retained)+len(r.pending))
	out = append(out, r.retained...)
	out = append(out, r.pending...)
	r.retained = nil
	return out
}

// retain keeps a failed batch for the next flush. After Close has taken its
// final batch nothing flushes again, so the samples are counted as lost.
func (r *Recorder) retain(batch []models.AmplitudeSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.lost += len(batch)
		r.metrics.RecordSamplesLost(len(batch))
		r.logger.Error().Int("samples", len(batch)).Msg("Sample batch failed after close, samples lost")
		return
	}
	r.retained = append(batch, r.retained...)
}

// Lost returns how many samples were given up on, including writes that
// failed after Close returned.
func (r *Recorder) Lost() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

// Retained returns the number of samples waiting for a retry.
func (r *Recorder) Retained() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.retained)
}

// OnSnore requests a clip for the event. The recording row is written once
// the clip file is complete.
func (r *Recorder) OnSnore(ev models.SnoreEvent) {
	if r.clips == nil {
		return
	}
	req := clip.Request{
		SessionID:        r.sessionID,
		RelativeMs:       ev.RelativeMs,
		TriggerAmplitude: ev.TriggerAmplitude,
	}
	restarted, err := r.clips.Capture(req, r.onClip)
	if err != nil {
		r.metrics.RecordClip("failed")
		r.logger.Error().Err(err).Msg("Failed to start clip")
		return
	}
	if restarted {
		r.metrics.RecordClip("restarted")
		r.logger.Info().Int64("relativeMs", ev.RelativeMs).Msg("Previous clip cut short, recording restarted")
	}
}

func (r *Recorder) onClip(rec models.Recording, err error) {
	if errors.Is(err, clip.ErrEmpty) {
		r.metrics.RecordClip("empty")
		r.logger.Debug().Msg("Clip ended before any audio arrived")
		return
	}
	if err != nil {
		r.metrics.RecordClip("failed")
		r.logger.Warn().Err(err).Msg("Clip capture failed")
		return
	}
	ok := r.queue.submit(func(ctx context.Context) {
		if _, err := r.store.InsertRecording(ctx, rec); err != nil {
			r.metrics.RecordClip("failed")
			r.logger.Error().Err(err).Str("path", rec.FilePath).Msg("Failed to store recording")
			return
		}
		r.metrics.RecordClip("saved")
		r.logger.Info().
			Str("path", rec.FilePath).
			Int64("durationMs", rec.DurationMs).
			Msg("Recording saved")
	})
	if !ok {
		r.metrics.RecordClip("failed")
		r.logger.Warn().Str("path", rec.FilePath).Msg("Write queue unavailable, recording not stored")
	}
}

// Close waits for queued writes, then writes every retained and pending
// sample synchronously. It returns how many samples could not be persisted.
func (r *Recorder) Close(ctx context.Context) int {
	if err := r.queue.close(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Timed out waiting for queued writes")
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	remaining := r.takeAll()
	r.pending = nil

	if len(remaining) == 0 {
		return 0
	}
	err := r.store.InsertAmplitudeSamples(ctx, remaining)
	r.metrics.RecordSampleFlush(err, len(remaining))
	if err != nil {
		r.mu.Lock()
		r.lost += len(remaining)
		r.mu.Unlock()
		r.metrics.RecordSamplesLost(len(remaining))
		r.logger.Error().Err(err).Int("samples", len(remaining)).Msg("Final sample write failed")
		return len(remaining)
	}
	return 0
}
