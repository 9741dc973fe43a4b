// Package models contains domain models for conductor.
package models

import "regexp"

// Event types emitted by the session and step state machines.
const (
	EventSessionCreated   = "session_created"
	EventSessionStarted   = "session_started"
	EventSessionPaused    = "session_paused"
	EventSessionResumed   = "session_resumed"
	EventSessionCancelled = "session_cancelled"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"

	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"
	EventStepSuspended = "step_suspended"
)

var eventTypePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidEventType reports whether t is a well-formed event type token
// (lowercase letters, digits and underscores only).
func ValidEventType(t string) bool {
	return t != "" && eventTypePattern.MatchString(t)
}

// Event is an immutable, timestamped record of something that happened
// in a session. Timestamps are non-decreasing within a session; Seq
// breaks ties when the clock resolution is insufficient, so
// (timestamp_epoch, seq) is a total order per session.
type Event struct {
	ID             string  `db:"id" json:"id"`
	SessionID      string  `db:"session_id" json:"session_id"`
	StepID         string  `db:"step_id" json:"step_id,omitempty"`
	EventType      string  `db:"event_type" json:"event_type"`
	EventData      JSONMap `db:"event_data" json:"event_data,omitempty"`
	Message        string  `db:"message" json:"message,omitempty"`
	Timestamp      string  `db:"timestamp" json:"timestamp"`
	TimestampEpoch int64   `db:"timestamp_epoch" json:"timestamp_epoch"`
	Seq            int64   `db:"seq" json:"seq"`
}
