// Package models contains domain models for conductor.
package models

// SessionType identifies the kind of automation a session performs.
type SessionType string

const (
	SessionTypeMaintenance    SessionType = "maintenance"
	SessionTypeTestGeneration SessionType = "test_generation"
	SessionTypeDeployment     SessionType = "deployment"
)

// ValidSessionType reports whether t is a supported session type.
func ValidSessionType(t SessionType) bool {
	switch t {
	case SessionTypeMaintenance, SessionTypeTestGeneration, SessionTypeDeployment:
		return true
	}
	return false
}

// SessionMode controls how much autonomy the session's executors have.
type SessionMode string

const (
	ModeInteractive  SessionMode = "interactive"
	ModeAutonomous   SessionMode = "autonomous"
	ModeAnalysisOnly SessionMode = "analysis_only"
)

// ValidSessionMode reports whether m is a supported mode.
func ValidSessionMode(m SessionMode) bool {
	switch m {
	case ModeInteractive, ModeAutonomous, ModeAnalysisOnly:
		return true
	}
	return false
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// ValidSessionStatus reports whether s names a known lifecycle state.
func ValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionPending, SessionInProgress, SessionPaused,
		SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Session is a top-level unit of work with a type, a mode and an ordered
// step plan. Steps, events and artifacts belong to exactly one session
// and are removed with it.
type Session struct {
	ID               string        `db:"id" json:"id"`
	SessionType      SessionType   `db:"session_type" json:"session_type"`
	Mode             SessionMode   `db:"mode" json:"mode"`
	ProjectPath      string        `db:"project_path" json:"project_path"`
	Config           JSONMap       `db:"config" json:"config,omitempty"`
	Status           SessionStatus `db:"status" json:"status"`
	Result           JSONMap       `db:"result" json:"result,omitempty"`
	ErrorMessage     string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        string        `db:"created_at" json:"created_at"`
	CreatedAtEpoch   int64         `db:"created_at_epoch" json:"created_at_epoch"`
	UpdatedAt        string        `db:"updated_at" json:"updated_at"`
	UpdatedAtEpoch   int64         `db:"updated_at_epoch" json:"updated_at_epoch"`
	CompletedAt      string        `db:"completed_at" json:"completed_at,omitempty"`
	CompletedAtEpoch int64         `db:"completed_at_epoch" json:"completed_at_epoch,omitempty"`
}
