// Package models contains domain models for conductor.
package models

// CheckpointStatus tracks whether a checkpoint is still resumable.
type CheckpointStatus string

const (
	CheckpointActive   CheckpointStatus = "active"
	CheckpointConsumed CheckpointStatus = "consumed"
)

// Checkpoint is a resumable snapshot of session progress captured when
// the session is paused. A session has at most one active checkpoint;
// resuming marks it consumed.
type Checkpoint struct {
	ID               string           `db:"id" json:"id"`
	SessionID        string           `db:"session_id" json:"session_id"`
	LastCompletedSeq int              `db:"last_completed_seq" json:"last_completed_seq"`
	ConfigSnapshot   JSONMap          `db:"config_snapshot" json:"config_snapshot,omitempty"`
	Reason           string           `db:"reason" json:"reason,omitempty"`
	Status           CheckpointStatus `db:"status" json:"status"`
	CreatedAt        string           `db:"created_at" json:"created_at"`
	CreatedAtEpoch   int64            `db:"created_at_epoch" json:"created_at_epoch"`
	ConsumedAt       string           `db:"consumed_at" json:"consumed_at,omitempty"`
	ConsumedAtEpoch  int64            `db:"consumed_at_epoch" json:"consumed_at_epoch,omitempty"`
}
