// Package session tracks the lifecycle and running totals of a monitoring session.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the monitor.
type State int

const (
	// StateIdle - No session. Start is allowed.
	StateIdle State = iota
	// StateStarting - Capture is being opened, no session row exists yet.
	StateStarting
	// StateRunning - Session row exists, frames are flowing.
	StateRunning
	// StateStopping - Capture is closing and the session is being finalized.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true while a start or a session is in progress.
func (s State) IsActive() bool {
	return s != StateIdle
}

// Errors for invalid state transitions.
var (
	ErrAlreadyRunning = errors.New("a session is already running")
	ErrNotRunning     = errors.New("no session is running")
)

// Lifecycle guards the single-session invariant. Thread-safe.
//
// State transitions:
//
//	IDLE → STARTING → RUNNING → STOPPING → IDLE
//	          │
//	          └── Abort() ──→ IDLE (capture failed to open)
type Lifecycle struct {
	mu        sync.RWMutex
	state     State
	sessionID int64
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// SessionID returns the running session's id, or 0.
func (l *Lifecycle) SessionID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// Begin reserves the monitor for a new session.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return ErrAlreadyRunning
	}
	l.state = StateStarting
	return nil
}

// Started records the new session's id and transitions to RUNNING.
func (l *Lifecycle) Started(sessionID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStarting {
		return fmt.Errorf("unexpected state: %v", l.state)
	}
	l.state = StateRunning
	l.sessionID = sessionID
	return nil
}

// Abort returns a STARTING lifecycle to IDLE. Returns false otherwise.
func (l *Lifecycle) Abort() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStarting {
		return false
	}
	l.state = StateIdle
	return true
}

// BeginStop transitions RUNNING to STOPPING and returns the session id.
// Only one caller wins; the rest get ErrNotRunning.
func (l *Lifecycle) BeginStop() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return 0, ErrNotRunning
	}
	l.state = StateStopping
	return l.sessionID, nil
}

// Stopped returns the lifecycle to IDLE. Idempotent.
func (l *Lifecycle) Stopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateIdle
	l.sessionID = 0
}
