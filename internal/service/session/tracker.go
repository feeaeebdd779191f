package session

import (
	"sync"
	"time"
)

// Tracker keeps the running totals of one session. The capture worker
// writes, status readers snapshot.
type Tracker struct {
	mu           sync.RWMutex
	sessionID    int64
	startedAt    time.Time
	lastFrameAt  time.Time
	snoreCount   int
	maxAmplitude float64
}

// NewTracker creates a tracker for the given session.
func NewTracker(sessionID int64, startedAt time.Time) *Tracker {
	return &Tracker{sessionID: sessionID, startedAt: startedAt}
}

// AddEvent counts a snore event and returns the new count.
func (t *Tracker) AddEvent(amplitude float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snoreCount++
	if amplitude > t.maxAmplitude {
		t.maxAmplitude = amplitude
	}
	return t.snoreCount
}

// ObserveFrame records the timestamp of the latest processed frame.
func (t *Tracker) ObserveFrame(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.lastFrameAt) {
		t.lastFrameAt = at
	}
}

// Snapshot is a point-in-time copy of the totals.
type Snapshot struct {
	SessionID    int64     `json:"sessionId"`
	StartedAt    time.Time `json:"startedAt"`
	LastFrameAt  time.Time `json:"lastFrameAt"`
	SnoreCount   int       `json:"snoreCount"`
	MaxAmplitude float64   `json:"maxAmplitude"`
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		SessionID:    t.sessionID,
		StartedAt:    t.startedAt,
		LastFrameAt:  t.lastFrameAt,
		SnoreCount:   t.snoreCount,
		MaxAmplitude: t.maxAmplitude,
	}
}

// EndTime picks the session end: the later of now and the last frame, and
// always strictly after the start.
func (s Snapshot) EndTime(now time.Time) time.Time {
	end := now
	if s.LastFrameAt.After(end) {
		end = s.LastFrameAt
	}
	if !end.After(s.StartedAt) {
		end = s.StartedAt.Add(time.Millisecond)
	}
	return end
}
