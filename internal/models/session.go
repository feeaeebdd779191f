// Package models defines the data structures shared by the monitor, the store and the API.
package models

import "time"

// Session is one continuous monitoring run.
type Session struct {
	ID              int64     `json:"id"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime,omitempty"`
	SnoreCount      int       `json:"snoreCount"`
	MaxAmplitude    float64   `json:"maxAmplitude"`
	DateTimestamp   time.Time `json:"dateTimestamp"`
	DurationMinutes int       `json:"durationMinutes"`
}

// Finalized reports whether the session has an end time.
func (s Session) Finalized() bool {
	return !s.EndTime.IsZero()
}

// AmplitudeSample is one throttled loudness reading inside a session.
type AmplitudeSample struct {
	SessionID  int64   `json:"sessionId"`
	RelativeMs int64   `json:"timestampMs"`
	Amplitude  float64 `json:"amplitude"`
	IsSnore    bool    `json:"isSnore"`
}

// SnoreEvent is a confirmed detection.
type SnoreEvent struct {
	SessionID        int64     `json:"sessionId"`
	RelativeMs       int64     `json:"timestampMs"`
	At               time.Time `json:"at"`
	TriggerAmplitude float64   `json:"triggerAmplitude"`
}

// Recording references an audio clip captured after a snore event.
type Recording struct {
	ID               int64   `json:"id"`
	SessionID        int64   `json:"sessionId"`
	RelativeMs       int64   `json:"timestampMs"`
	FilePath         string  `json:"filePath"`
	DurationMs       int64   `json:"durationMs"`
	TriggerAmplitude float64 `json:"triggerAmplitude"`
}

// AggregateStats summarizes finalized sessions in a range.
type AggregateStats struct {
	TotalSessions int     `json:"totalSessions"`
	TotalSnores   int     `json:"totalSnores"`
	AvgAmplitude  float64 `json:"avgAmplitude"`
	MaxAmplitude  float64 `json:"maxAmplitude"`
	TotalMinutes  int64   `json:"totalMinutes"`
}

// DailyCount is the number of snores recorded on one local day.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
