// Package models contains domain models for conductor.
package models

// ArtifactType classifies session outputs.
type ArtifactType string

const (
	ArtifactTestFile ArtifactType = "test_file"
	ArtifactReport   ArtifactType = "report"
	ArtifactDiff     ArtifactType = "diff"
	ArtifactBackup   ArtifactType = "backup"
	ArtifactLog      ArtifactType = "log"
)

// ValidArtifactType reports whether t names a known artifact type.
func ValidArtifactType(t ArtifactType) bool {
	switch t {
	case ArtifactTestFile, ArtifactReport, ArtifactDiff, ArtifactBackup, ArtifactLog:
		return true
	}
	return false
}

// DefaultFileFormat is used when an artifact does not declare a format.
const DefaultFileFormat = "json"

// Artifact is a named output produced during execution. Exactly one of
// Content (inline) and FilePath (reference) is populated; artifacts are
// immutable once created.
type Artifact struct {
	ID             string       `db:"id" json:"id"`
	SessionID      string       `db:"session_id" json:"session_id"`
	StepID         string       `db:"step_id" json:"step_id,omitempty"`
	ArtifactType   ArtifactType `db:"artifact_type" json:"artifact_type"`
	Name           string       `db:"name" json:"name"`
	Content        string       `db:"content" json:"content,omitempty"`
	FilePath       string       `db:"file_path" json:"file_path,omitempty"`
	Metadata       JSONMap      `db:"metadata" json:"metadata,omitempty"`
	FileFormat     string       `db:"file_format" json:"file_format"`
	CreatedAt      string       `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64        `db:"created_at_epoch" json:"created_at_epoch"`
}
