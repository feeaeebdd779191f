// Package monitor runs the capture worker of a monitoring session. It
// coordinates the audio source, the detector, the feedback actuator, the
// session recorder and the event bus.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability/logging"
	"snore-monitor-service/internal/observability/metrics"
	"snore-monitor-service/internal/service/audio"
	"snore-monitor-service/internal/service/clip"
	"snore-monitor-service/internal/service/detection"
	"snore-monitor-service/internal/service/feedback"
	"snore-monitor-service/internal/service/recorder"
	"snore-monitor-service/internal/service/session"
	"snore-monitor-service/internal/service/signal"
)

// ErrStartFailed is returned when capture could not be acquired. No session
// row exists afterwards.
var ErrStartFailed = errors.New("failed to start monitoring")

// Stop reasons reported in the final SessionStatus.
const (
	ReasonRequested    = "requested"
	ReasonEndOfStream  = "end of stream"
	ReasonCaptureError = "capture error"
)

// Store is the persistence the monitor needs.
type Store interface {
	recorder.Store
	InsertSession(ctx context.Context, s models.Session) (int64, error)
	FinalizeSession(ctx context.Context, s models.Session) error
}

// Publisher receives every monitor event. *events.Bus satisfies it.
type Publisher interface {
	Publish(e models.Event)
}

// SourceFactory opens a fresh audio source for a session starting at start.
type SourceFactory func(start time.Time) (audio.Source, error)

// Options are the fixed parameters of the monitor.
type Options struct {
	ZCRThreshold float64
	WarmUp       time.Duration
	Recorder     recorder.Options
	// StopTimeout bounds the final flush and finalize.
	StopTimeout time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	d := detection.DefaultOptions()
	return Options{
		ZCRThreshold: d.ZCRThreshold,
		WarmUp:       d.WarmUp,
		Recorder:     recorder.DefaultOptions(),
		StopTimeout:  30 * time.Second,
	}
}

// Deps are the collaborators of a Monitor. Clips, Actuator and Events may be nil.
type Deps struct {
	NewSource  SourceFactory
	Store      Store
	Thresholds detection.Thresholds
	Actuator   *feedback.Actuator
	Clips      *clip.Recorder
	Events     Publisher
	Options    Options
}

// run is the state of one active session.
type run struct {
	id        int64
	start     time.Time
	source    audio.Source
	detector  *detection.Detector
	recorder  *recorder.Recorder
	tracker   *session.Tracker
	logger    zerolog.Logger
	cancel    context.CancelFunc
	exited    chan struct{}
	finalized chan struct{}
	result    models.Session
	err       error
}

// Monitor owns at most one monitoring session at a time.
type Monitor struct {
	newSource  SourceFactory
	store      Store
	thresholds detection.Thresholds
	actuator   *feedback.Actuator
	clips      *clip.Recorder
	events     Publisher
	opts       Options
	lifecycle  *session.Lifecycle
	metrics    *metrics.Metrics
	now        func() time.Time

	mu   sync.Mutex
	run  *run
	last *models.Session
}

// New creates an idle monitor.
func New(deps Deps) *Monitor {
	opts := deps.Options
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultOptions().StopTimeout
	}
	if opts.ZCRThreshold <= 0 {
		opts.ZCRThreshold = detection.DefaultZCRThreshold
	}
	if opts.WarmUp < 0 {
		opts.WarmUp = detection.DefaultWarmUp
	}
	actuator := deps.Actuator
	if actuator == nil {
		actuator = feedback.New(feedback.Noop{}, feedback.DefaultPattern, feedback.DefaultBuffer)
	}
	return &Monitor{
		newSource:  deps.NewSource,
		store:      deps.Store,
		thresholds: deps.Thresholds,
		actuator:   actuator,
		clips:      deps.Clips,
		events:     deps.Events,
		opts:       opts,
		lifecycle:  session.NewLifecycle(),
		metrics:    metrics.DefaultMetrics,
		now:        time.Now,
	}
}

// Start acquires capture, creates the session row and spawns the capture
// worker. The worker outlives ctx; use Stop to end the session.
func (m *Monitor) Start(ctx context.Context) (models.Session, error) {
	if err := m.lifecycle.Begin(); err != nil {
		return models.Session{}, err
	}

	start := m.now()
	src, err := m.openSource(ctx, start)
	if err != nil {
		m.lifecycle.Abort()
		m.metrics.RecordSessionFailed("capture")
		log.Error().Err(err).Msg("Audio capture unavailable, session not started")
		return models.Session{}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	sess := models.Session{
		StartTime:     start,
		DateTimestamp: models.StartOfDay(start),
	}
	id, err := m.store.InsertSession(ctx, sess)
	if err != nil {
		closeSource(src)
		m.lifecycle.Abort()
		m.metrics.RecordSessionFailed("store")
		log.Error().Err(err).Msg("Failed to create session")
		return models.Session{}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	sess.ID = id

	workerCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     id,
		start:  start,
		source: src,
		detector: detection.NewDetector(m.thresholds, detection.Options{
			ZCRThreshold: m.opts.ZCRThreshold,
			Cooldown:     m.actuator.Cooldown(),
			WarmUp:       m.opts.WarmUp,
		}, start),
		recorder:  recorder.New(id, start, m.store, m.clipCapturer(), m.opts.Recorder),
		tracker:   session.NewTracker(id, start),
		logger:    logging.WithSessionComponent(id, "monitor"),
		cancel:    cancel,
		exited:    make(chan struct{}),
		finalized: make(chan struct{}),
	}

	m.mu.Lock()
	m.run = r
	m.mu.Unlock()

	if err := m.lifecycle.Started(id); err != nil {
		cancel()
		closeSource(src)
		m.mu.Lock()
		m.run = nil
		m.mu.Unlock()
		m.lifecycle.Abort()
		return models.Session{}, err
	}

	m.metrics.RecordSessionStart()
	r.logger.Info().Time("startTime", start).Msg("Monitoring started")
	m.publish(models.SessionStatus{
		EventType: models.EventSession,
		SessionID: id,
		Timestamp: start.UnixMilli(),
		Status:    models.StatusStarted,
	})

	go m.capture(workerCtx, r)
	return sess, nil
}

func (m *Monitor) openSource(ctx context.Context, start time.Time) (audio.Source, error) {
	if m.newSource == nil {
		return nil, errors.New("no audio source configured")
	}
	src, err := m.newSource(start)
	if err != nil {
		return nil, err
	}
	if err := src.Open(ctx); err != nil {
		closeSource(src)
		return nil, err
	}
	return src, nil
}

// clipCapturer avoids handing the recorder a typed nil.
func (m *Monitor) clipCapturer() recorder.ClipCapturer {
	if m.clips == nil {
		return nil
	}
	return m.clips
}

// capture is the single worker of a session. Frames are processed strictly
// in order.
func (m *Monitor) capture(ctx context.Context, r *run) {
	defer close(r.exited)

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := r.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reason := ReasonCaptureError
			if errors.Is(err, io.EOF) {
				reason = ReasonEndOfStream
				r.logger.Info().Msg("Audio stream ended")
			} else {
				m.metrics.RecordCaptureError("read")
				r.logger.Error().Err(err).Msg("Audio capture failed, finalizing session")
			}
			go func() {
				if _, err := m.stop(context.Background(), reason); err != nil {
					r.logger.Error().Err(err).Msg("Automatic finalize failed")
				}
			}()
			return
		}
		m.process(r, frame)
	}
}

func (m *Monitor) process(r *run, frame signal.Frame) {
	began := time.Now()

	met := signal.Measure(frame.Samples)
	d := r.detector.Process(met, frame.At)
	rel := r.recorder.RelativeMs(frame.At)

	// Suppressed frames read as silence on every timeline.
	amplitude := met.RMS
	isSnore := met.RMS >= d.Threshold
	if d.Class == detection.ClassSuppressed {
		amplitude = 0
		isSnore = false
	}
	m.publish(models.AmplitudeUpdate{
		EventType:  models.EventAmplitude,
		SessionID:  r.id,
		Timestamp:  frame.At.UnixMilli(),
		RelativeMs: rel,
		Amplitude:  amplitude,
	})

	r.recorder.Sample(frame.At, amplitude, isSnore)
	if m.clips != nil {
		m.clips.Feed(frame.Samples)
	}
	r.tracker.ObserveFrame(frame.At)

	if d.Event {
		m.onSnore(r, frame.At, rel, met.RMS)
	}

	m.metrics.RecordFrame(d.Class.String(), met.RMS, time.Since(began).Seconds())
}

func (m *Monitor) onSnore(r *run, at time.Time, rel int64, amplitude float64) {
	if m.actuator.Playing() {
		m.metrics.RecordFeedback("skipped")
	} else {
		m.metrics.RecordFeedback("triggered")
	}
	m.actuator.Trigger()

	count := r.tracker.AddEvent(amplitude)
	m.metrics.RecordSnore()
	r.logger.Info().
		Int("count", count).
		Int64("relativeMs", rel).
		Float64("amplitude", amplitude).
		Msg("Snore detected")

	m.publish(models.SnoreDetected{
		EventType:  models.EventSnore,
		SessionID:  r.id,
		Timestamp:  at.UnixMilli(),
		RelativeMs: rel,
		Count:      count,
		Amplitude:  amplitude,
	})

	r.recorder.OnSnore(models.SnoreEvent{
		SessionID:        r.id,
		RelativeMs:       rel,
		At:               at,
		TriggerAmplitude: amplitude,
	})
}

// Stop ends the running session and returns it finalized. With no session
// running it returns nil, nil.
func (m *Monitor) Stop(ctx context.Context) (*models.Session, error) {
	return m.stop(ctx, ReasonRequested)
}

func (m *Monitor) stop(ctx context.Context, reason string) (*models.Session, error) {
	id, err := m.lifecycle.BeginStop()
	if err != nil {
		log.Info().Str("reason", reason).Msg("Nothing to stop")
		return nil, nil
	}

	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil || r.id != id {
		m.lifecycle.Stopped()
		return nil, fmt.Errorf("session %d has no capture worker", id)
	}

	// Release capture first, whatever happens next.
	r.cancel()
	closeSource(r.source)
	<-r.exited

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StopTimeout)
	defer cancel()

	if m.clips != nil {
		m.clips.Finish()
	}
	if lost := r.recorder.Close(fctx); lost > 0 {
		r.logger.Warn().Int("samples", lost).Msg("Samples could not be persisted")
	}

	snap := r.tracker.Snapshot()
	end := snap.EndTime(m.now())
	sess := models.Session{
		ID:              id,
		StartTime:       r.start,
		EndTime:         end,
		SnoreCount:      snap.SnoreCount,
		MaxAmplitude:    snap.MaxAmplitude,
		DateTimestamp:   models.StartOfDay(r.start),
		DurationMinutes: int(end.Sub(r.start) / time.Minute),
	}

	var finalizeErr error
	if err := m.store.FinalizeSession(fctx, sess); err != nil {
		finalizeErr = fmt.Errorf("finalize session %d: %w", id, err)
		m.metrics.RecordSessionFailed("finalize")
		r.logger.Error().Err(err).Msg("Failed to finalize session")
	}

	m.publish(models.SessionStatus{
		EventType:    models.EventSession,
		SessionID:    id,
		Timestamp:    end.UnixMilli(),
		Status:       models.StatusStopped,
		SnoreCount:   sess.SnoreCount,
		MaxAmplitude: sess.MaxAmplitude,
		Reason:       reason,
	})

	m.metrics.RecordSessionEnd(end.Sub(r.start).Seconds())
	r.logger.Info().
		Str("reason", reason).
		Int("snoreCount", sess.SnoreCount).
		Float64("maxAmplitude", sess.MaxAmplitude).
		Int("durationMinutes", sess.DurationMinutes).
		Msg("Monitoring stopped")

	r.result = sess
	r.err = finalizeErr
	m.mu.Lock()
	m.run = nil
	m.last = &sess
	m.mu.Unlock()
	m.lifecycle.Stopped()
	close(r.finalized)

	return &sess, finalizeErr
}

// Wait blocks until the running session is finalized, by Stop or by the end
// of its audio stream. It returns session.ErrNotRunning when idle.
func (m *Monitor) Wait(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil {
		return models.Session{}, session.ErrNotRunning
	}

	select {
	case <-ctx.Done():
		return models.Session{}, ctx.Err()
	case <-r.finalized:
		return r.result, r.err
	}
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State           string            `json:"state"`
	Session         *session.Snapshot `json:"session,omitempty"`
	FeedbackPlaying bool              `json:"feedbackPlaying"`
	LastSession     *models.Session   `json:"lastSession,omitempty"`
}

// Status returns the current state and, while running, the session totals.
func (m *Monitor) Status() Status {
	st := Status{
		State:           m.lifecycle.State().String(),
		FeedbackPlaying: m.actuator.Playing(),
	}
	m.mu.Lock()
	r := m.run
	if m.last != nil {
		last := *m.last
		st.LastSession = &last
	}
	m.mu.Unlock()
	if r != nil {
		snap := r.tracker.Snapshot()
		st.Session = &snap
	}
	return st
}

// Running reports whether a session is in progress.
func (m *Monitor) Running() bool {
	return m.lifecycle.State() == session.StateRunning
}

func (m *Monitor) publish(e models.Event) {
	if m.events != nil {
		m.events.Publish(e)
	}
}

func closeSource(src audio.Source) {
	if err := src.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close audio source")
	}
}
