// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/conductor/pkg/models"
)

// ArtifactStore provides artifact-related database operations.
type ArtifactStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewArtifactStore creates a new artifact store.
func NewArtifactStore(store *Store) *ArtifactStore {
	return &ArtifactStore{db: store.DB, nowFunc: store.nowFunc}
}

// ArtifactFilter selects artifacts for listing.
type ArtifactFilter struct {
	SessionID    string
	ArtifactType models.ArtifactType
	Page         int
	PerPage      int
}

// CreateArtifact stores a new immutable artifact. Exactly one of
// content and file_path must be populated.
func (s *ArtifactStore) CreateArtifact(ctx context.Context, a *models.Artifact) error {
	if (a.Content == "") == (a.FilePath == "") {
		return fmt.Errorf("artifact %q: exactly one of content and file_path must be set", a.Name)
	}

	dbArtifact := &Artifact{
		ID:             a.ID,
		SessionID:      a.SessionID,
		StepID:         nullString(a.StepID),
		ArtifactType:   a.ArtifactType,
		Name:           a.Name,
		Content:        nullString(a.Content),
		FilePath:       nullString(a.FilePath),
		Metadata:       a.Metadata,
		FileFormat:     a.FileFormat,
		CreatedAt:      a.CreatedAt,
		CreatedAtEpoch: a.CreatedAtEpoch,
	}
	if err := s.db.WithContext(ctx).Create(dbArtifact).Error; err != nil {
		return err
	}
	*a = *toModelArtifact(dbArtifact)
	return nil
}

// ListArtifacts returns one page of a session's artifacts, newest
// first, plus the total count.
func (s *ArtifactStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*models.Artifact, int64, error) {
	q := s.db.WithContext(ctx).Model(&Artifact{}).Where("session_id = ?", filter.SessionID)
	if filter.ArtifactType != "" {
		q = q.Where("artifact_type = ?", filter.ArtifactType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Artifact
	err := q.Order("created_at_epoch DESC").
		Offset(models.Offset(filter.Page, filter.PerPage)).
		Limit(filter.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	artifacts := make([]*models.Artifact, len(rows))
	for i := range rows {
		artifacts[i] = toModelArtifact(&rows[i])
	}
	return artifacts, total, nil
}

func toModelArtifact(d *Artifact) *models.Artifact {
	return &models.Artifact{
		ID:             d.ID,
		SessionID:      d.SessionID,
		StepID:         fromNullString(d.StepID),
		ArtifactType:   d.ArtifactType,
		Name:           d.Name,
		Content:        fromNullString(d.Content),
		FilePath:       fromNullString(d.FilePath),
		Metadata:       d.Metadata,
		FileFormat:     d.FileFormat,
		CreatedAt:      d.CreatedAt,
		CreatedAtEpoch: d.CreatedAtEpoch,
	}
}
