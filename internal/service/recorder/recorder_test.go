package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/service/clip"
)

var t0 = time.UnixMilli(1773450000000)

type fakeStore struct {
	mu         sync.Mutex
	batches    [][]models.AmplitudeSample
	recordings []models.Recording
	failNext   int
	failAll    bool
	block      chan struct{}
}

func (s *fakeStore) InsertAmplitudeSamples(_ context.Context, samples []models.AmplitudeSample) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("disk full")
	}
	if s.failNext > 0 {
		s.failNext--
		return errors.New("database is locked")
	}
	cp := make([]models.AmplitudeSample, len(samples))
	copy(cp, samples)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *fakeStore) InsertRecording(_ context.Context, rec models.Recording) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings = append(s.recordings, rec)
	return int64(len(s.recordings)), nil
}

func (s *fakeStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *fakeStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// feed simulates n frames 100 ms apart.
func feed(r *Recorder, from, n int) {
	for i := from; i < from+n; i++ {
		r.Sample(t0.Add(time.Duration(i)*100*time.Millisecond), float64(i), i%2 == 0)
	}
}

func TestRecorder_ThrottlesTo100ms(t *testing.T) {
	store := &fakeStore{}
	r := New(1, t0, store, nil, DefaultOptions())

	assert.True(t, r.Sample(t0, 1, false))
	assert.False(t, r.Sample(t0.Add(64*time.Millisecond), 2, false))
	assert.True(t, r.Sample(t0.Add(100*time.Millisecond), 3, false))
	assert.False(t, r.Sample(t0.Add(150*time.Millisecond), 4, false))
	assert.True(t, r.Sample(t0.Add(228*time.Millisecond), 5, true))

	assert.Equal(t, 0, r.Close(context.Background()))
	require.Equal(t, 1, store.batchCount())
	got := store.batches[0]
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].RelativeMs)
	assert.Equal(t, int64(100), got[1].RelativeMs)
	assert.Equal(t, int64(228), got[2].RelativeMs)
	assert.True(t, got[2].IsSnore)
}

func TestRecorder_FiftySamplesTriggerFlush(t *testing.T) {
	store := &fakeStore{}
	r := New(1, t0, store, nil, DefaultOptions())

	feed(r, 0, 49)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.batchCount(), "49 samples must not flush")

	feed(r, 49, 1)
	require.Eventually(t, func() bool { return store.batchCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 50, store.total())

	assert.Equal(t, 0, r.Close(context.Background()))
}

func TestRecorder_CloseWritesRemainder(t *testing.T) {
	store := &fakeStore{}
	r := New(1, t0, store, nil, DefaultOptions())

	feed(r, 0, 49)
	assert.Equal(t, 0, r.Close(context.Background()))
	assert.Equal(t, 49, store.total())
}

func TestRecorder_FailedBatchIsRetried(t *testing.T) {
	store := &fakeStore{failNext: 1}
	r := New(1, t0, store, nil, DefaultOptions())

	feed(r, 0, 50)
	require.Eventually(t, func() bool { return r.Retained() == 50 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, store.batchCount())

	feed(r, 50, 50)
	require.Eventually(t, func() bool { return store.batchCount() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 0, r.Close(context.Background()))
	assert.Equal(t, 100, store.total())
	first := store.batches[0]
	assert.Equal(t, int64(0), first[0].RelativeMs, "retained samples are prepended")
	assert.Equal(t, int64(9900), first[99].RelativeMs)
}

func TestRecorder_CloseReportsUnpersisted(t *testing.T) {
	store := &fakeStore{failAll: true}
	r := New(1, t0, store, nil, DefaultOptions())

	feed(r, 0, 75)
	assert.Equal(t, 75, r.Close(context.Background()))
	assert.Equal(t, 75, r.Lost())
}

func TestRecorder_RelativeMsNeverNegative(t *testing.T) {
	r := New(1, t0, &fakeStore{}, nil, DefaultOptions())
	assert.Equal(t, int64(0), r.RelativeMs(t0.Add(-time.Second)))
	r.Close(context.Background())
}

type fakeClips struct {
	startErr error
	rec      models.Recording
	err      error
	reqs     []clip.Request
}

func (c *fakeClips) Capture(req clip.Request, done clip.DoneFunc) (bool, error) {
	if c.startErr != nil {
		return false, c.startErr
	}
	c.reqs = append(c.reqs, req)
	rec := c.rec
	rec.SessionID = req.SessionID
	rec.RelativeMs = req.RelativeMs
	rec.TriggerAmplitude = req.TriggerAmplitude
	done(rec, c.err)
	return len(c.reqs) > 1, nil
}

func TestRecorder_OnSnoreStoresRecording(t *testing.T) {
	store := &fakeStore{}
	clips := &fakeClips{rec: models.Recording{FilePath: "/clips/a.wav", DurationMs: 20000}}
	r := New(9, t0, store, clips, DefaultOptions())

	r.OnSnore(models.SnoreEvent{SessionID: 9, RelativeMs: 520, TriggerAmplitude: 1100})
	assert.Equal(t, 0, r.Close(context.Background()))

	require.Len(t, store.recordings, 1)
	rec := store.recordings[0]
	assert.Equal(t, int64(9), rec.SessionID)
	assert.Equal(t, int64(520), rec.RelativeMs)
	assert.Equal(t, 1100.0, rec.TriggerAmplitude)
}

func TestRecorder_OnSnoreEveryEventRequestsClip(t *testing.T) {
	store := &fakeStore{}
	clips := &fakeClips{rec: models.Recording{FilePath: "/clips/a.wav", DurationMs: 3000}}
	r := New(9, t0, store, clips, DefaultOptions())

	r.OnSnore(models.SnoreEvent{RelativeMs: 1000})
	r.OnSnore(models.SnoreEvent{RelativeMs: 4000})
	assert.Equal(t, 0, r.Close(context.Background()))

	require.Len(t, clips.reqs, 2)
	require.Len(t, store.recordings, 2)
	assert.Equal(t, int64(4000), store.recordings[1].RelativeMs)
}

func TestRecorder_OnSnoreClipNotStored(t *testing.T) {
	tests := []struct {
		name  string
		clips *fakeClips
	}{
		{"start failed", &fakeClips{startErr: errors.New("read-only filesystem")}},
		{"write failed", &fakeClips{err: errors.New("no space")}},
		{"no audio", &fakeClips{err: clip.ErrEmpty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			r := New(9, t0, store, tt.clips, DefaultOptions())
			r.OnSnore(models.SnoreEvent{RelativeMs: 1})
			r.Close(context.Background())
			assert.Empty(t, store.recordings)
		})
	}
}

func TestRecorder_NoClipCapturer(t *testing.T) {
	r := New(9, t0, &fakeStore{}, nil, DefaultOptions())
	r.OnSnore(models.SnoreEvent{RelativeMs: 1})
	assert.Equal(t, 0, r.Close(context.Background()))
}

func TestRecorder_WriteFailingAfterCloseTimeoutIsCountedLost(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{failAll: true, block: release}
	r := New(1, t0, store, nil, DefaultOptions())

	feed(r, 0, DefaultBatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// The queued batch is still blocked, so nothing is left for the final write.
	assert.Equal(t, 0, r.Close(ctx))

	close(release)
	require.Eventually(t, func() bool { return r.Lost() == DefaultBatchSize }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.Retained())
}
