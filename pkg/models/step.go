// Package models contains domain models for conductor.
package models

// StepStatus represents the lifecycle state of a step. Steps never
// regress to an earlier state.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Terminal reports whether s is a final step state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Step is one ordered unit of execution within a session. The sequence
// is fixed when the session plan is materialized and never changes.
type Step struct {
	ID               string     `db:"id" json:"id"`
	SessionID        string     `db:"session_id" json:"session_id"`
	Code             string     `db:"code" json:"code"`
	Name             string     `db:"name" json:"name"`
	Sequence         int        `db:"sequence" json:"sequence"`
	Status           StepStatus `db:"status" json:"status"`
	InputData        JSONMap    `db:"input_data" json:"input_data,omitempty"`
	OutputData       JSONMap    `db:"output_data" json:"output_data,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        string     `db:"created_at" json:"created_at"`
	CreatedAtEpoch   int64      `db:"created_at_epoch" json:"created_at_epoch"`
	StartedAt        string     `db:"started_at" json:"started_at,omitempty"`
	StartedAtEpoch   int64      `db:"started_at_epoch" json:"started_at_epoch,omitempty"`
	CompletedAt      string     `db:"completed_at" json:"completed_at,omitempty"`
	CompletedAtEpoch int64      `db:"completed_at_epoch" json:"completed_at_epoch,omitempty"`
}
