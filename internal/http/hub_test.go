package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snore-monitor-service/internal/models"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(msg, &v))
	return v
}

func TestHub_BroadcastsWithTypeFilter(t *testing.T) {
	hub := NewHub()
	events := make(chan models.Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	srv := httptest.NewServer(NewRouter(&API{Hub: hub, Monitor: &fakeMonitor{}}))
	defer srv.Close()

	all := dialHub(t, srv, "")
	snoresOnly := dialHub(t, srv, "?types=monitor.snore")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	events <- models.AmplitudeUpdate{EventType: models.EventAmplitude, SessionID: 1, Amplitude: 640}
	events <- models.SnoreDetected{EventType: models.EventSnore, SessionID: 1, Count: 1, Amplitude: 1100}

	first := readEvent(t, all)
	assert.Equal(t, models.EventAmplitude, first["eventType"])
	second := readEvent(t, all)
	assert.Equal(t, models.EventSnore, second["eventType"])

	only := readEvent(t, snoresOnly)
	assert.Equal(t, models.EventSnore, only["eventType"])
	assert.Equal(t, 1100.0, only["amplitude"])
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	events := make(chan models.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	srv := httptest.NewServer(NewRouter(&API{Hub: hub, Monitor: &fakeMonitor{}}))
	defer srv.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_ClosedFeedDisconnectsClients(t *testing.T) {
	hub := NewHub()
	events := make(chan models.Event)
	go hub.Run(context.Background(), events)

	srv := httptest.NewServer(NewRouter(&API{Hub: hub, Monitor: &fakeMonitor{}}))
	defer srv.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	close(events)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
}
