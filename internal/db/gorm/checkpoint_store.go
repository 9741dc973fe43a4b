// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/conductor/pkg/models"
)

// CheckpointStore provides checkpoint-related database operations.
type CheckpointStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewCheckpointStore creates a new checkpoint store.
func NewCheckpointStore(store *Store) *CheckpointStore {
	return &CheckpointStore{db: store.DB, nowFunc: store.nowFunc}
}

// CreateCheckpoint stores a new active checkpoint, superseding any
// previous active checkpoint of the session in the same transaction so
// at most one is active at a time.
func (s *CheckpointStore) CreateCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	nowStr, nowEpoch := stamp(s.nowFunc())

	dbCheckpoint := &Checkpoint{
		ID:               cp.ID,
		SessionID:        cp.SessionID,
		LastCompletedSeq: cp.LastCompletedSeq,
		ConfigSnapshot:   cp.ConfigSnapshot,
		Reason:           nullString(cp.Reason),
		Status:           models.CheckpointActive,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Checkpoint{}).
			Where("session_id = ? AND status = ?", cp.SessionID, models.CheckpointActive).
			Updates(map[string]any{
				"status":            models.CheckpointConsumed,
				"consumed_at":       nowStr,
				"consumed_at_epoch": nowEpoch,
			}).Error
		if err != nil {
			return err
		}
		return tx.Create(dbCheckpoint).Error
	})
	if err != nil {
		return err
	}

	*cp = *toModelCheckpoint(dbCheckpoint)
	return nil
}

// GetActiveCheckpoint returns the session's active checkpoint, or nil.
func (s *CheckpointStore) GetActiveCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	var dbCheckpoint Checkpoint
	err := s.db.WithContext(ctx).
		First(&dbCheckpoint, "session_id = ? AND status = ?", sessionID, models.CheckpointActive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelCheckpoint(&dbCheckpoint), nil
}

// ConsumeCheckpoint marks a checkpoint consumed. Returns false if it
// was not active.
func (s *CheckpointStore) ConsumeCheckpoint(ctx context.Context, id string) (bool, error) {
	nowStr, nowEpoch := stamp(s.nowFunc())
	res := s.db.WithContext(ctx).Model(&Checkpoint{}).
		Where("id = ? AND status = ?", id, models.CheckpointActive).
		Updates(map[string]any{
			"status":            models.CheckpointConsumed,
			"consumed_at":       nowStr,
			"consumed_at_epoch": nowEpoch,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func toModelCheckpoint(d *Checkpoint) *models.Checkpoint {
	return &models.Checkpoint{
		ID:               d.ID,
		SessionID:        d.SessionID,
		LastCompletedSeq: d.LastCompletedSeq,
		ConfigSnapshot:   d.ConfigSnapshot,
		Reason:           fromNullString(d.Reason),
		Status:           d.Status,
		CreatedAt:        d.CreatedAt,
		CreatedAtEpoch:   d.CreatedAtEpoch,
		ConsumedAt:       fromNullString(d.ConsumedAt),
		ConsumedAtEpoch:  fromNullInt64(d.ConsumedAtEpoch),
	}
}
