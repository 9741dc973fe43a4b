// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/conductor/pkg/models"
)

// GORM models. JSONMap implements sql.Scanner and driver.Valuer, so
// opaque payloads serialize as JSON text columns.

// Session is the sessions table row.
type Session struct {
	ID               string               `gorm:"primaryKey;type:text"`
	SessionType      models.SessionType   `gorm:"type:text;check:session_type IN ('maintenance', 'test_generation', 'deployment');index;not null"`
	Mode             models.SessionMode   `gorm:"type:text;check:mode IN ('interactive', 'autonomous', 'analysis_only');not null"`
	ProjectPath      string               `gorm:"type:text;not null"`
	Config           models.JSONMap       `gorm:"type:text"`
	Status           models.SessionStatus `gorm:"type:text;check:status IN ('pending', 'in_progress', 'paused', 'completed', 'failed', 'cancelled');default:'pending';index"`
	Result           models.JSONMap       `gorm:"type:text"`
	ErrorMessage     sql.NullString       `gorm:"type:text"`
	CreatedAt        string               `gorm:"not null"`
	CreatedAtEpoch   int64                `gorm:"index:idx_sessions_created,sort:desc;not null"`
	UpdatedAt        string               `gorm:"not null"`
	UpdatedAtEpoch   int64                `gorm:"not null"`
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure id and timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = now.UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = now.Format(time.RFC3339)
	}
	if s.UpdatedAtEpoch == 0 {
		s.UpdatedAtEpoch = s.CreatedAtEpoch
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = s.CreatedAt
	}
	return nil
}

// Step is the steps table row. Sequence ordering is fixed at plan time.
type Step struct {
	ID               string            `gorm:"primaryKey;type:text"`
	SessionID        string            `gorm:"index;uniqueIndex:idx_steps_session_code,priority:1;uniqueIndex:idx_steps_session_seq,priority:1;not null"`
	Code             string            `gorm:"type:text;uniqueIndex:idx_steps_session_code,priority:2;not null"`
	Name             string            `gorm:"type:text;not null"`
	Sequence         int               `gorm:"uniqueIndex:idx_steps_session_seq,priority:2;not null"`
	Status           models.StepStatus `gorm:"type:text;check:status IN ('pending', 'in_progress', 'completed', 'failed', 'skipped');default:'pending';index"`
	InputData        models.JSONMap    `gorm:"type:text"`
	OutputData       models.JSONMap    `gorm:"type:text"`
	ErrorMessage     sql.NullString    `gorm:"type:text"`
	CreatedAt        string            `gorm:"not null"`
	CreatedAtEpoch   int64             `gorm:"not null"`
	StartedAt        sql.NullString
	StartedAtEpoch   sql.NullInt64
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
}

func (Step) TableName() string { return "steps" }

// BeforeCreate hook to ensure id and timestamps are set.
func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = now.UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// Event is the events table row. (session_id, seq) is unique and
// strictly increasing, making (timestamp_epoch, seq) a stable cursor.
type Event struct {
	ID             string         `gorm:"primaryKey;type:text"`
	SessionID      string         `gorm:"index:idx_events_session_ts,priority:1;uniqueIndex:idx_events_session_seq,priority:1;not null"`
	StepID         sql.NullString `gorm:"index"`
	EventType      string         `gorm:"type:text;index;not null"`
	EventData      models.JSONMap `gorm:"type:text"`
	Message        sql.NullString `gorm:"type:text"`
	Timestamp      string         `gorm:"not null"`
	TimestampEpoch int64          `gorm:"index:idx_events_session_ts,priority:2;not null"`
	Seq            int64          `gorm:"uniqueIndex:idx_events_session_seq,priority:2;not null"`
}

func (Event) TableName() string { return "events" }

// Artifact is the artifacts table row. Exactly one of content and
// file_path is populated; enforced in the store, not the schema.
type Artifact struct {
	ID             string              `gorm:"primaryKey;type:text"`
	SessionID      string              `gorm:"index;not null"`
	StepID         sql.NullString      `gorm:"index"`
	ArtifactType   models.ArtifactType `gorm:"type:text;index;not null"`
	Name           string              `gorm:"type:text;not null"`
	Content        sql.NullString      `gorm:"type:text"`
	FilePath       sql.NullString      `gorm:"type:text"`
	Metadata       models.JSONMap      `gorm:"type:text"`
	FileFormat     string              `gorm:"type:text;default:'json';not null"`
	CreatedAt      string              `gorm:"not null"`
	CreatedAtEpoch int64               `gorm:"index:idx_artifacts_created,sort:desc;not null"`
}

func (Artifact) TableName() string { return "artifacts" }

// BeforeCreate hook to ensure id, format default and timestamps.
func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.FileFormat == "" {
		a.FileFormat = models.DefaultFileFormat
	}
	now := time.Now()
	if a.CreatedAtEpoch == 0 {
		a.CreatedAtEpoch = now.UnixMilli()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// Checkpoint is the checkpoints table row. At most one active
// checkpoint exists per session; creation supersedes older ones.
type Checkpoint struct {
	ID               string                  `gorm:"primaryKey;type:text"`
	SessionID        string                  `gorm:"index:idx_checkpoints_session_status,priority:1;not null"`
	LastCompletedSeq int                     `gorm:"not null"`
	ConfigSnapshot   models.JSONMap          `gorm:"type:text"`
	Reason           sql.NullString          `gorm:"type:text"`
	Status           models.CheckpointStatus `gorm:"type:text;check:status IN ('active', 'consumed');default:'active';index:idx_checkpoints_session_status,priority:2"`
	CreatedAt        string                  `gorm:"not null"`
	CreatedAtEpoch   int64                   `gorm:"not null"`
	ConsumedAt       sql.NullString
	ConsumedAtEpoch  sql.NullInt64
}

func (Checkpoint) TableName() string { return "checkpoints" }

// BeforeCreate hook to ensure id and timestamps are set.
func (c *Checkpoint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = now.UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}
