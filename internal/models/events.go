package models

// Event is anything the monitor publishes to subscribers.
type Event interface {
	EventName() string
}

// Event type names.
const (
	EventAmplitude = "monitor.amplitude"
	EventSnore     = "monitor.snore"
	EventSession   = "monitor.session"
)

// AmplitudeUpdate is emitted for every captured frame. Amplitude is 0 while
// detection is suppressed.
type AmplitudeUpdate struct {
	EventType  string  `json:"eventType"`
	SessionID  int64   `json:"sessionId"`
	Timestamp  int64   `json:"timestamp"`
	RelativeMs int64   `json:"relativeMs"`
	Amplitude  float64 `json:"amplitude"`
}

// EventName implements Event.
func (AmplitudeUpdate) EventName() string { return EventAmplitude }

// SnoreDetected is emitted once per confirmed snore.
type SnoreDetected struct {
	EventType  string  `json:"eventType"`
	SessionID  int64   `json:"sessionId"`
	Timestamp  int64   `json:"timestamp"`
	RelativeMs int64   `json:"relativeMs"`
	Count      int     `json:"count"`
	Amplitude  float64 `json:"amplitude"`
}

// EventName implements Event.
func (SnoreDetected) EventName() string { return EventSnore }

// Session status values.
const (
	StatusStarted = "started"
	StatusStopped = "stopped"
)

// SessionStatus is emitted when monitoring starts or a session is finalized.
type SessionStatus struct {
	EventType    string  `json:"eventType"`
	SessionID    int64   `json:"sessionId"`
	Timestamp    int64   `json:"timestamp"`
	Status       string  `json:"status"`
	SnoreCount   int     `json:"snoreCount"`
	MaxAmplitude float64 `json:"maxAmplitude"`
	Reason       string  `json:"reason,omitempty"`
}

// EventName implements Event.
func (SessionStatus) EventName() string { return EventSession }
