// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/conductor/pkg/models"
)

// EventStore provides append-only event log operations.
type EventStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewEventStore creates a new event store.
func NewEventStore(store *Store) *EventStore {
	return &EventStore{db: store.DB, nowFunc: store.nowFunc}
}

// EventFilter selects events for querying.
type EventFilter struct {
	SessionID string
	// SinceEpoch, when non-nil, restricts to events with
	// timestamp_epoch strictly greater than the value (exclusive, so
	// pollers never see duplicates).
	SinceEpoch *int64
	EventType  string
	Page       int
	PerPage    int
}

// AppendEvent stores a new event, assigning a timestamp that never
// regresses within the session and a strictly increasing per-session
// sequence number. The read-and-insert runs in one transaction; the
// session's previous tail row is locked on backends that support it,
// so concurrent appends serialize per session.
func (s *EventStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := s.nowFunc()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Session(&gorm.Session{})
		// SQLite serializes writers on its own and rejects FOR UPDATE.
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var last Event
		err := q.Where("session_id = ?", ev.SessionID).
			Order("seq DESC").
			First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ev.Seq = last.Seq + 1
		ev.TimestampEpoch = now.UnixMilli()
		if ev.TimestampEpoch < last.TimestampEpoch {
			ev.TimestampEpoch = last.TimestampEpoch
		}
		ev.Timestamp = time.UnixMilli(ev.TimestampEpoch).UTC().Format(time.RFC3339)

		return tx.Create(&Event{
			ID:             ev.ID,
			SessionID:      ev.SessionID,
			StepID:         nullString(ev.StepID),
			EventType:      ev.EventType,
			EventData:      ev.EventData,
			Message:        nullString(ev.Message),
			Timestamp:      ev.Timestamp,
			TimestampEpoch: ev.TimestampEpoch,
			Seq:            ev.Seq,
		}).Error
	})
}

// ListEvents returns one page of events in (timestamp, seq) ascending
// order, plus the total count for the filter.
func (s *EventStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.Event, int64, error) {
	q := s.db.WithContext(ctx).Model(&Event{}).Where("session_id = ?", filter.SessionID)
	if filter.SinceEpoch != nil {
		q = q.Where("timestamp_epoch > ?", *filter.SinceEpoch)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Event
	err := q.Order("timestamp_epoch ASC, seq ASC").
		Offset(models.Offset(filter.Page, filter.PerPage)).
		Limit(filter.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	events := make([]*models.Event, len(rows))
	for i := range rows {
		events[i] = toModelEvent(&rows[i])
	}
	return events, total, nil
}

func toModelEvent(d *Event) *models.Event {
	return &models.Event{
		ID:             d.ID,
		SessionID:      d.SessionID,
		StepID:         fromNullString(d.StepID),
		EventType:      d.EventType,
		EventData:      d.EventData,
		Message:        fromNullString(d.Message),
		Timestamp:      d.Timestamp,
		TimestampEpoch: d.TimestampEpoch,
		Seq:            d.Seq,
	}
}
