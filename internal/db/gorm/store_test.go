package gorm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/conductor/pkg/models"
)

// testStore creates a Store backed by a temp SQLite database.
func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "conductor-test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedSession creates a session with a two-step plan.
func seedSession(t *testing.T, store *Store, status models.SessionStatus) *models.Session {
	t.Helper()

	session := &models.Session{
		SessionType: models.SessionTypeMaintenance,
		Mode:        models.ModeInteractive,
		ProjectPath: "/tmp/project",
		Config:      models.JSONMap{"key": "value"},
		Status:      models.SessionPending,
	}
	steps := []*models.Step{
		{Code: "analyze", Name: "Analyze", Sequence: 0, Status: models.StepPending},
		{Code: "apply", Name: "Apply", Sequence: 1, Status: models.StepPending},
	}
	require.NoError(t, NewSessionStore(store).CreateSession(context.Background(), session, steps))

	if status != models.SessionPending {
		ok, err := NewSessionStore(store).TransitionSession(context.Background(), session.ID,
			[]models.SessionStatus{models.SessionPending}, status, nil)
		require.NoError(t, err)
		require.True(t, ok)
		session.Status = status
	}
	return session
}

func TestStorePing(t *testing.T) {
	store := testStore(t)
	assert.NoError(t, store.Ping())
}

func TestMigrationsIdempotent(t *testing.T) {
	store := testStore(t)
	// Re-running against the same DB must be a no-op.
	require.NoError(t, runMigrations(store.DB))
}

func TestCreateSessionMaterializesPlan(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	session := seedSession(t, store, models.SessionPending)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionPending, session.Status)
	assert.NotEmpty(t, session.CreatedAt)
	assert.NotZero(t, session.CreatedAtEpoch)

	steps, err := NewStepStore(store).AllSteps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "analyze", steps[0].Code)
	assert.Equal(t, 0, steps[0].Sequence)
	assert.Equal(t, models.StepPending, steps[0].Status)
	assert.Equal(t, session.ID, steps[0].SessionID)
}

func TestGetSessionAbsent(t *testing.T) {
	store := testStore(t)

	got, err := NewSessionStore(store).GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransitionSessionConditional(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	sessions := NewSessionStore(store)

	session := seedSession(t, store, models.SessionPending)

	// Wrong expected status: no update.
	ok, err := sessions.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionPaused}, models.SessionInProgress, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// Matching expected status: updated.
	ok, err = sessions.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionPending}, models.SessionInProgress, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, got.Status)
	assert.Empty(t, got.CompletedAt)
}

func TestTransitionSessionTerminalStampsCompletedAt(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	sessions := NewSessionStore(store)

	session := seedSession(t, store, models.SessionInProgress)

	ok, err := sessions.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionInProgress}, models.SessionFailed,
		&SessionUpdate{ErrorMessage: "executor exploded"})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
	assert.Equal(t, "executor exploded", got.ErrorMessage)
	assert.NotEmpty(t, got.CompletedAt)
	assert.NotZero(t, got.CompletedAtEpoch)
}

func TestListSessionsFilterAndPaginate(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	sessions := NewSessionStore(store)

	for i := 0; i < 5; i++ {
		seedSession(t, store, models.SessionPending)
	}
	seedSession(t, store, models.SessionInProgress)

	items, total, err := sessions.ListSessions(ctx, SessionFilter{
		Status: models.SessionPending, Page: 1, PerPage: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, items, 3)

	// Page beyond the last: empty items, unchanged total.
	items, total, err = sessions.ListSessions(ctx, SessionFilter{
		Status: models.SessionPending, Page: 9, PerPage: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Empty(t, items)

	// Type filter.
	items, total, err = sessions.ListSessions(ctx, SessionFilter{
		SessionType: models.SessionTypeDeployment, Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestDeleteSessionCascades(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	sessions := NewSessionStore(store)
	events := NewEventStore(store)
	artifacts := NewArtifactStore(store)

	session := seedSession(t, store, models.SessionPending)
	require.NoError(t, events.AppendEvent(ctx, &models.Event{
		SessionID: session.ID, EventType: models.EventSessionCreated,
	}))
	require.NoError(t, artifacts.CreateArtifact(ctx, &models.Artifact{
		SessionID:    session.ID,
		ArtifactType: models.ArtifactReport,
		Name:         "report.json",
		Content:      `{"ok":true}`,
	}))

	ok, err := sessions.DeleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	steps, err := NewStepStore(store).AllSteps(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	evs, total, err := events.ListEvents(ctx, EventFilter{SessionID: session.ID, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, evs)

	// Deleting again reports absence.
	ok, err = sessions.DeleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
