package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	paths      []string
	deleted    int64
	cutoff     time.Time
	listErr    error
	deleteErr  error
	deleteCall int
}

func (f *fakeStore) RecordingPathsBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	f.cutoff = cutoff
	return f.paths, f.listErr
}

func (f *fakeStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleteCall++
	return f.deleted, f.deleteErr
}

var now = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

func writeClip(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
	return p
}

func TestSweep_DeletesExpiredSessionsAndFiles(t *testing.T) {
	dir := t.TempDir()
	old := now.AddDate(0, 0, -40)
	expired := writeClip(t, dir, "snore_1_a.wav", old)
	orphan := writeClip(t, dir, "snore_2_b.wav", old)
	fresh := writeClip(t, dir, "snore_9_c.wav", now)
	other := writeClip(t, dir, "notes.wav", old)

	store := &fakeStore{paths: []string{expired, filepath.Join(dir, "missing.wav")}, deleted: 2}
	s := New(store, Config{Days: 30, ClipDir: dir})
	s.now = func() time.Time { return now }

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.AddDate(0, 0, -30), res.Cutoff)
	assert.Equal(t, res.Cutoff, store.cutoff)
	assert.Equal(t, int64(2), res.Sessions)
	assert.Equal(t, 2, res.Files)

	assert.NoFileExists(t, expired)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestSweep_Disabled(t *testing.T) {
	store := &fakeStore{}
	s := New(store, Config{Days: 0})

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sessions)
	assert.Zero(t, store.deleteCall)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Start())
}

func TestSweep_StoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"list fails", &fakeStore{listErr: errors.New("locked")}},
		{"delete fails", &fakeStore{deleteErr: errors.New("locked")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.store, Config{Days: 7})
			_, err := s.Sweep(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestSweep_ListFailureKeepsSessions(t *testing.T) {
	store := &fakeStore{listErr: errors.New("locked")}
	s := New(store, Config{Days: 7})

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.deleteCall, "sessions must not be deleted when their clips cannot be listed")
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&fakeStore{}, Config{Days: 7, Schedule: "every now and then"})
	assert.Error(t, s.Start())
}

func TestStart_StopsCleanly(t *testing.T) {
	s := New(&fakeStore{}, Config{Days: 7, Schedule: "@every 1h"})
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
