// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	db "github.com/thebtf/conductor/internal/db/gorm"
	"github.com/thebtf/conductor/pkg/models"
)

// EventLog is the append-only, per-session ordered audit trail. Every
// externally observable transition goes through Append; consumers poll
// Query with an exclusive since-cursor or subscribe via the notify
// hook.
type EventLog struct {
	store  *db.EventStore
	notify func(*models.Event)
}

// NewEventLog creates an event log over the given store.
func NewEventLog(store *db.EventStore) *EventLog {
	return &EventLog{store: store}
}

// SetNotify installs a fan-out hook invoked after each successful
// append (e.g. the SSE broadcaster). The hook must not block.
func (l *EventLog) SetNotify(fn func(*models.Event)) {
	l.notify = fn
}

// Append validates and stores a new event. Validation happens before
// any write; after it, the store insert is the only fallible step.
func (l *EventLog) Append(ctx context.Context, sessionID, stepID, eventType string, data models.JSONMap, message string) (*models.Event, error) {
	if !models.ValidEventType(eventType) {
		return nil, models.InvalidArgumentf("invalid event type %q: want lowercase letters, digits and underscores", eventType)
	}

	ev := &models.Event{
		SessionID: sessionID,
		StepID:    stepID,
		EventType: eventType,
		EventData: data,
		Message:   message,
	}
	if err := l.store.AppendEvent(ctx, ev); err != nil {
		return nil, models.Internalf(err, "append event %s", eventType)
	}

	if l.notify != nil {
		l.notify(ev)
	}
	return ev, nil
}

// mustAppend is Append for internal transitions where the event is
// mandatory: a failed write is logged loudly but never masks the
// transition outcome already persisted.
func (l *EventLog) mustAppend(ctx context.Context, sessionID, stepID, eventType string, data models.JSONMap, message string) {
	if _, err := l.Append(ctx, sessionID, stepID, eventType, data, message); err != nil {
		log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("eventType", eventType).
			Msg("Failed to append mandatory event")
	}
}

// EventQuery selects events for a polling read. Since is the raw
// cursor string from the caller: epoch milliseconds, exclusive.
type EventQuery struct {
	Since     string
	EventType string
	Page      int
	PerPage   int
}

// Query returns one page of a session's events in append order.
func (l *EventLog) Query(ctx context.Context, sessionID string, q EventQuery) ([]*models.Event, models.Pagination, error) {
	if err := models.ValidatePageParams(q.Page, q.PerPage); err != nil {
		return nil, models.Pagination{}, err
	}
	if q.EventType != "" && !models.ValidEventType(q.EventType) {
		return nil, models.Pagination{}, models.InvalidArgumentf("invalid event type filter %q", q.EventType)
	}

	filter := db.EventFilter{
		SessionID: sessionID,
		EventType: q.EventType,
		Page:      q.Page,
		PerPage:   q.PerPage,
	}
	if q.Since != "" {
		since, err := strconv.ParseInt(q.Since, 10, 64)
		if err != nil {
			return nil, models.Pagination{}, models.InvalidArgumentf("invalid since cursor %q: want epoch milliseconds", q.Since)
		}
		filter.SinceEpoch = &since
	}

	events, total, err := l.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, models.Internalf(err, "list events")
	}
	return events, models.NewPagination(q.Page, q.PerPage, total), nil
}
