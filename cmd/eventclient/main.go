// Command eventclient tails the live event feed of a running snore-monitor
// service over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	EventType    string  `json:"eventType"`
	SessionID    int64   `json:"sessionId"`
	Timestamp    int64   `json:"timestamp"`
	RelativeMs   int64   `json:"relativeMs"`
	Amplitude    float64 `json:"amplitude"`
	Count        int     `json:"count"`
	Status       string  `json:"status"`
	SnoreCount   int     `json:"snoreCount"`
	MaxAmplitude float64 `json:"maxAmplitude"`
	Reason       string  `json:"reason"`
}

func main() {
	server := flag.String("server", "ws://localhost:8080/v1/events", "Event feed URL")
	types := flag.String("types", "", "Comma-separated event types, e.g. monitor.snore,monitor.session")
	raw := flag.Bool("raw", false, "Print raw JSON")
	flag.Parse()

	u, err := url.Parse(*server)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	if *types != "" {
		q := u.Query()
		q.Set("types", *types)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	go func() {
		<-ctx.Done()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("Feed closed")
				return
			}
			log.Printf("Read failed: %v", err)
			os.Exit(1)
		}
		if *raw {
			fmt.Println(string(msg))
			continue
		}
		var e envelope
		if err := json.Unmarshal(msg, &e); err != nil {
			log.Printf("Skipping malformed event: %v", err)
			continue
		}
		fmt.Println(describe(e))
	}
}

func describe(e envelope) string {
	at := time.UnixMilli(e.Timestamp).Format("15:04:05.000")
	switch e.EventType {
	case "monitor.snore":
		return fmt.Sprintf("%s session=%d SNORE #%d amplitude=%.0f", at, e.SessionID, e.Count, e.Amplitude)
	case "monitor.session":
		if e.Reason != "" {
			return fmt.Sprintf("%s session=%d %s snores=%d max=%.0f reason=%s",
				at, e.SessionID, e.Status, e.SnoreCount, e.MaxAmplitude, e.Reason)
		}
		return fmt.Sprintf("%s session=%d %s", at, e.SessionID, e.Status)
	case "monitor.amplitude":
		return fmt.Sprintf("%s session=%d amplitude=%.0f", at, e.SessionID, e.Amplitude)
	default:
		return fmt.Sprintf("%s %s", at, e.EventType)
	}
}
