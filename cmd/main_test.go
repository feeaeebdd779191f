package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/schema"
)

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{1500, "00:00:01.500"},
		{61_250, "00:01:01.250"},
		{(7*3600 + 5*60 + 9) * 1000, "07:05:09.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatOffset(tt.ms))
	}
}

func TestWriteSessions(t *testing.T) {
	start := time.UnixMilli(1773450000000)
	var buf bytes.Buffer
	writeSessions(&buf, []models.Session{
		{ID: 1, StartTime: start, EndTime: start.Add(95 * time.Minute), DurationMinutes: 95, SnoreCount: 12, MaxAmplitude: 1834},
		{ID: 2, StartTime: start.Add(24 * time.Hour)},
	})

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "95")
	assert.Contains(t, out, "1834")
	assert.Contains(t, out, "running")

	buf.Reset()
	writeSessions(&buf, nil)
	assert.Equal(t, "No sessions in this period.\n", buf.String())
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	day := models.StartOfDay(time.UnixMilli(1773450000000))
	writeStats(&buf, "7d", models.AggregateStats{TotalSessions: 2, TotalSnores: 7, AvgAmplitude: 950, MaxAmplitude: 1200, TotalMinutes: 800},
		[]models.DailyCount{{Day: day, Count: 7}})

	out := buf.String()
	assert.Contains(t, out, "Period: 7d")
	assert.Contains(t, out, "snores:        7")
	assert.Contains(t, out, day.Format(time.DateOnly)+"  7")
}

func TestRemoteSettings(t *testing.T) {
	var gotMethod string
	var gotBody schema.SettingsUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		assert.Equal(t, "/v1/settings", r.URL.Path)
		if r.Method == http.MethodPut {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(config.SettingsSnapshot{Sensitivity: 2, RMSThreshold: 600, MinDurationMs: 500})
	}))
	defer srv.Close()

	snap, err := remoteSettings(context.Background(), srv.URL+"/", schema.SettingsUpdate{}, false)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, 600.0, snap.RMSThreshold)

	level := 2
	_, err = remoteSettings(context.Background(), srv.URL, schema.SettingsUpdate{Sensitivity: &level}, true)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	require.NotNil(t, gotBody.Sensitivity)
	assert.Equal(t, 2, *gotBody.Sensitivity)
}

func TestRemoteSettings_ServerRejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json error", "application/json", `{"error":"invalid record: sensitivity 9 outside 1..5"}`, "sensitivity 9 outside 1..5"},
		{"plain error", "text/plain; charset=utf-8", "bad gateway", "bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			level := 3
			_, err := remoteSettings(context.Background(), srv.URL, schema.SettingsUpdate{Sensitivity: &level}, true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "400")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSettingsCmd_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"sensitivity", []string{"settings", "--sensitivity", "9"}},
		{"min duration", []string{"settings", "--min-duration", "20s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(tt.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			err := root.Execute()
			require.Error(t, err)
			assert.True(t, errors.Is(err, schema.ErrInvalid))
		})
	}
}
