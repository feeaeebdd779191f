package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/service/audio"
	"snore-monitor-service/internal/service/audio/synthetic"
	"snore-monitor-service/internal/service/feedback"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Service.DataDir = dir
	cfg.Storage.DBPath = filepath.Join(dir, "snore.db")
	cfg.Recording.Dir = filepath.Join(dir, "recordings")
	cfg.Recording.ClipDuration = time.Second
	cfg.Audio.Realtime = false
	cfg.Detection.WarmUp = 0
	return cfg
}

func TestSourceFactory(t *testing.T) {
	start := time.UnixMilli(1773450000000)
	tests := []struct {
		name    string
		cfg     config.AudioConfig
		want    any
		wantErr bool
	}{
		{"mic", config.AudioConfig{Source: "mic"}, &audio.MicSource{}, false},
		{"default", config.AudioConfig{}, &audio.MicSource{}, false},
		{"wav", config.AudioConfig{Source: "wav", WavPath: "night.wav"}, &audio.WavSource{}, false},
		{"wav without path", config.AudioConfig{Source: "wav"}, nil, true},
		{"synthetic", config.AudioConfig{Source: "synthetic"}, &synthetic.Source{}, false},
		{"unknown", config.AudioConfig{Source: "bluetooth"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := SourceFactory(tt.cfg)(start)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}
}

func TestVibrator(t *testing.T) {
	tests := []struct {
		cfg  config.FeedbackConfig
		want feedback.Vibrator
	}{
		{config.FeedbackConfig{Vibrator: "none"}, feedback.Noop{}},
		{config.FeedbackConfig{Vibrator: "log"}, feedback.LogVibrator{}},
		{config.FeedbackConfig{Vibrator: "exec"}, feedback.Noop{}},
		{config.FeedbackConfig{Vibrator: "exec", Command: "termux-vibrate -d {ms}"}, feedback.ExecVibrator{Command: "termux-vibrate -d {ms}"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Vibrator(tt.cfg), tt.cfg.Vibrator)
	}
}

func TestApplication_AnalyzesWavFile(t *testing.T) {
	cfg := testConfig(t)

	// 1 s quiet, 2 s of a loud low tone, 1 s quiet.
	samples := make([]int16, 4*16000)
	for i := 16000; i < 3*16000; i++ {
		samples[i] = 1500
	}
	wavPath := filepath.Join(cfg.Service.DataDir, "night.wav")
	f, err := os.Create(wavPath)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWav(f, 16000, samples))
	require.NoError(t, f.Close())

	cfg.Audio.Source = "wav"
	cfg.Audio.WavPath = wavPath

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := a.Monitor.Start(ctx)
	require.NoError(t, err)

	done, err := a.Monitor.Wait(ctx)
	if err != nil {
		// The stream may have ended before Wait was reached.
		require.Eventually(t, func() bool { return !a.Monitor.Running() }, 5*time.Second, 10*time.Millisecond)
		done, err = a.Store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
	}

	assert.True(t, done.Finalized())
	assert.Equal(t, 1, done.SnoreCount, "one 2 s tone is one event followed by cooldown")
	assert.Equal(t, 1500.0, done.MaxAmplitude)

	samplesStored, err := a.Store.SamplesForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, samplesStored)

	require.Eventually(t, func() bool {
		recs, err := a.Store.RecordingsForSession(ctx, sess.ID)
		return err == nil && len(recs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	a.Shutdown(ctx)
}

func TestApplication_StartWithoutMicrophone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Source = "wav"
	cfg.Audio.WavPath = filepath.Join(cfg.Service.DataDir, "missing.wav")

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Shutdown(context.Background())

	_, err = a.Monitor.Start(context.Background())
	require.Error(t, err)

	sessions, err := a.Store.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
