// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/conductor/pkg/models"
)

// SessionStore provides session-related database operations.
type SessionStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB, nowFunc: store.nowFunc}
}

// SessionFilter selects sessions for listing. Empty fields mean "no
// filter".
type SessionFilter struct {
	Status      models.SessionStatus
	SessionType models.SessionType
	Page        int
	PerPage     int
}

// CreateSession persists a new pending session together with its step
// plan in one transaction, so a session never exists without its steps.
func (s *SessionStore) CreateSession(ctx context.Context, session *models.Session, steps []*models.Step) error {
	dbSession := toDBSession(session)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dbSession).Error; err != nil {
			return err
		}
		for _, step := range steps {
			step.SessionID = dbSession.ID
			dbStep := toDBStep(step)
			if err := tx.Create(dbStep).Error; err != nil {
				return err
			}
			*step = *toModelStep(dbStep)
		}
		return nil
	})
	if err != nil {
		return err
	}

	*session = *toModelSession(dbSession)
	return nil
}

// GetSession retrieves a session by id. Returns nil if absent.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var dbSession Session
	err := s.db.WithContext(ctx).First(&dbSession, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&dbSession), nil
}

// ListSessions returns one page of sessions, newest first, plus the
// total row count for the filter.
func (s *SessionStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*models.Session, int64, error) {
	q := s.db.WithContext(ctx).Model(&Session{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SessionType != "" {
		q = q.Where("session_type = ?", filter.SessionType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Session
	err := q.Order("created_at_epoch DESC").
		Offset(models.Offset(filter.Page, filter.PerPage)).
		Limit(filter.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	sessions := make([]*models.Session, len(rows))
	for i := range rows {
		sessions[i] = toModelSession(&rows[i])
	}
	return sessions, total, nil
}

// SessionUpdate carries the mutable fields of a status transition.
type SessionUpdate struct {
	ErrorMessage string
	Result       models.JSONMap
}

// TransitionSession performs a conditional status update: the row is
// only touched if its current status is one of from. Returns false if
// the guard condition did not match (lost update avoided).
func (s *SessionStore) TransitionSession(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus, upd *SessionUpdate) (bool, error) {
	now := s.nowFunc()
	nowStr, nowEpoch := stamp(now)

	fields := map[string]any{
		"status":           to,
		"updated_at":       nowStr,
		"updated_at_epoch": nowEpoch,
	}
	if to.Terminal() {
		fields["completed_at"] = nowStr
		fields["completed_at_epoch"] = nowEpoch
	}
	if upd != nil {
		if upd.ErrorMessage != "" {
			fields["error_message"] = upd.ErrorMessage
		}
		if upd.Result != nil {
			fields["result"] = upd.Result
		}
	}

	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteSession removes a session and cascades to its steps, events,
// artifacts and checkpoints. Returns false if the session was absent.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Session{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		for _, child := range []any{&Step{}, &Event{}, &Artifact{}, &Checkpoint{}} {
			if err := tx.Delete(child, "session_id = ?", id).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func toDBSession(m *models.Session) *Session {
	return &Session{
		ID:               m.ID,
		SessionType:      m.SessionType,
		Mode:             m.Mode,
		ProjectPath:      m.ProjectPath,
		Config:           m.Config,
		Status:           m.Status,
		Result:           m.Result,
		ErrorMessage:     nullString(m.ErrorMessage),
		CreatedAt:        m.CreatedAt,
		CreatedAtEpoch:   m.CreatedAtEpoch,
		UpdatedAt:        m.UpdatedAt,
		UpdatedAtEpoch:   m.UpdatedAtEpoch,
		CompletedAt:      nullString(m.CompletedAt),
		CompletedAtEpoch: nullInt64(m.CompletedAtEpoch),
	}
}

func toModelSession(d *Session) *models.Session {
	return &models.Session{
		ID:               d.ID,
		SessionType:      d.SessionType,
		Mode:             d.Mode,
		ProjectPath:      d.ProjectPath,
		Config:           d.Config,
		Status:           d.Status,
		Result:           d.Result,
		ErrorMessage:     fromNullString(d.ErrorMessage),
		CreatedAt:        d.CreatedAt,
		CreatedAtEpoch:   d.CreatedAtEpoch,
		UpdatedAt:        d.UpdatedAt,
		UpdatedAtEpoch:   d.UpdatedAtEpoch,
		CompletedAt:      fromNullString(d.CompletedAt),
		CompletedAtEpoch: fromNullInt64(d.CompletedAtEpoch),
	}
}
