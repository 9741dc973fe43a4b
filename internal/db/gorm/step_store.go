// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/conductor/pkg/models"
)

// StepStore provides step-related database operations.
type StepStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewStepStore creates a new step store.
func NewStepStore(store *Store) *StepStore {
	return &StepStore{db: store.DB, nowFunc: store.nowFunc}
}

// GetStep retrieves a step by session id and code. Returns nil if
// absent.
func (s *StepStore) GetStep(ctx context.Context, sessionID, code string) (*models.Step, error) {
	var dbStep Step
	err := s.db.WithContext(ctx).
		First(&dbStep, "session_id = ? AND code = ?", sessionID, code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelStep(&dbStep), nil
}

// ListSteps returns one page of a session's steps ordered by sequence,
// plus the total count.
func (s *StepStore) ListSteps(ctx context.Context, sessionID string, page, perPage int) ([]*models.Step, int64, error) {
	q := s.db.WithContext(ctx).Model(&Step{}).Where("session_id = ?", sessionID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Step
	err := q.Order("sequence ASC").
		Offset(models.Offset(page, perPage)).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	steps := make([]*models.Step, len(rows))
	for i := range rows {
		steps[i] = toModelStep(&rows[i])
	}
	return steps, total, nil
}

// AllSteps returns every step of a session ordered by sequence. Used
// by the completion check, which needs the whole plan.
func (s *StepStore) AllSteps(ctx context.Context, sessionID string) ([]*models.Step, error) {
	var rows []Step
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	steps := make([]*models.Step, len(rows))
	for i := range rows {
		steps[i] = toModelStep(&rows[i])
	}
	return steps, nil
}

// NextPending returns the lowest-sequence non-terminal step of the
// session, or nil if every step is terminal.
func (s *StepStore) NextPending(ctx context.Context, sessionID string) (*models.Step, error) {
	var dbStep Step
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID,
			[]models.StepStatus{models.StepPending, models.StepInProgress}).
		Order("sequence ASC").
		First(&dbStep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelStep(&dbStep), nil
}

// StepUpdate carries the mutable fields of a step transition.
type StepUpdate struct {
	InputData    models.JSONMap
	OutputData   models.JSONMap
	ErrorMessage string
	// ClearStarted resets started_at, used when a suspended step is
	// rolled back to pending for later re-execution.
	ClearStarted bool
}

// TransitionStep performs a conditional status update guarded by the
// expected current status. Returns false if the row did not match.
func (s *StepStore) TransitionStep(ctx context.Context, id string, from []models.StepStatus, to models.StepStatus, upd *StepUpdate) (bool, error) {
	now := s.nowFunc()
	nowStr, nowEpoch := stamp(now)

	fields := map[string]any{"status": to}
	switch to {
	case models.StepInProgress:
		fields["started_at"] = nowStr
		fields["started_at_epoch"] = nowEpoch
	case models.StepCompleted, models.StepFailed, models.StepSkipped:
		fields["completed_at"] = nowStr
		fields["completed_at_epoch"] = nowEpoch
	}
	if upd != nil {
		if upd.InputData != nil {
			fields["input_data"] = upd.InputData
		}
		if upd.OutputData != nil {
			fields["output_data"] = upd.OutputData
		}
		if upd.ErrorMessage != "" {
			fields["error_message"] = upd.ErrorMessage
		}
		if upd.ClearStarted {
			fields["started_at"] = nil
			fields["started_at_epoch"] = nil
			fields["completed_at"] = nil
			fields["completed_at_epoch"] = nil
		}
	}

	res := s.db.WithContext(ctx).Model(&Step{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func toDBStep(m *models.Step) *Step {
	status := m.Status
	if status == "" {
		status = models.StepPending
	}
	return &Step{
		ID:               m.ID,
		SessionID:        m.SessionID,
		Code:             m.Code,
		Name:             m.Name,
		Sequence:         m.Sequence,
		Status:           status,
		InputData:        m.InputData,
		OutputData:       m.OutputData,
		ErrorMessage:     nullString(m.ErrorMessage),
		CreatedAt:        m.CreatedAt,
		CreatedAtEpoch:   m.CreatedAtEpoch,
		StartedAt:        nullString(m.StartedAt),
		StartedAtEpoch:   nullInt64(m.StartedAtEpoch),
		CompletedAt:      nullString(m.CompletedAt),
		CompletedAtEpoch: nullInt64(m.CompletedAtEpoch),
	}
}

func toModelStep(d *Step) *models.Step {
	return &models.Step{
		ID:               d.ID,
		SessionID:        d.SessionID,
		Code:             d.Code,
		Name:             d.Name,
		Sequence:         d.Sequence,
		Status:           d.Status,
		InputData:        d.InputData,
		OutputData:       d.OutputData,
		ErrorMessage:     fromNullString(d.ErrorMessage),
		CreatedAt:        d.CreatedAt,
		CreatedAtEpoch:   d.CreatedAtEpoch,
		StartedAt:        fromNullString(d.StartedAt),
		StartedAtEpoch:   fromNullInt64(d.StartedAtEpoch),
		CompletedAt:      fromNullString(d.CompletedAt),
		CompletedAtEpoch: fromNullInt64(d.CompletedAtEpoch),
	}
}
