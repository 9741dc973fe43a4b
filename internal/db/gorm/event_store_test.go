package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/conductor/pkg/models"
)

func TestAppendEventAssignsOrderedSeq(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	events := NewEventStore(store)

	session := seedSession(t, store, models.SessionPending)

	for i := 0; i < 5; i++ {
		ev := &models.Event{
			SessionID: session.ID,
			EventType: models.EventStepStarted,
			EventData: models.JSONMap{"i": i},
		}
		require.NoError(t, events.AppendEvent(ctx, ev))
		assert.EqualValues(t, i+1, ev.Seq)
		assert.NotEmpty(t, ev.ID)
		assert.NotZero(t, ev.TimestampEpoch)
	}

	items, total, err := events.ListEvents(ctx, EventFilter{SessionID: session.ID, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 5)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i].TimestampEpoch, items[i-1].TimestampEpoch)
		assert.Greater(t, items[i].Seq, items[i-1].Seq)
	}
}

func TestAppendEventClockNeverRegresses(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	session := seedSession(t, store, models.SessionPending)

	// Clock that jumps backwards between appends.
	times := []time.Time{
		time.UnixMilli(2000),
		time.UnixMilli(1000),
		time.UnixMilli(1500),
	}
	idx := 0
	store.SetNowFunc(func() time.Time {
		ts := times[idx]
		if idx < len(times)-1 {
			idx++
		}
		return ts
	})
	events := NewEventStore(store)

	var got []int64
	for i := 0; i < 3; i++ {
		ev := &models.Event{SessionID: session.ID, EventType: "tick"}
		require.NoError(t, events.AppendEvent(ctx, ev))
		got = append(got, ev.TimestampEpoch)
	}

	// Regressing wall clock is clamped to the previous timestamp.
	assert.Equal(t, []int64{2000, 2000, 2000}, got)
}

func TestListEventsSinceExclusive(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	session := seedSession(t, store, models.SessionPending)

	now := int64(10_000)
	store.SetNowFunc(func() time.Time {
		now += 100
		return time.UnixMilli(now)
	})
	events := NewEventStore(store)

	var appended []*models.Event
	for i := 0; i < 4; i++ {
		ev := &models.Event{SessionID: session.ID, EventType: "tick"}
		require.NoError(t, events.AppendEvent(ctx, ev))
		appended = append(appended, ev)
	}

	// since = second event's timestamp: strictly-after events only.
	since := appended[1].TimestampEpoch
	items, total, err := events.ListEvents(ctx, EventFilter{
		SessionID: session.ID, SinceEpoch: &since, Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, appended[2].ID, items[0].ID)
	assert.Equal(t, appended[3].ID, items[1].ID)

	// since after everything: empty page, total 0.
	future := appended[3].TimestampEpoch + 1
	items, total, err = events.ListEvents(ctx, EventFilter{
		SessionID: session.ID, SinceEpoch: &future, Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestListEventsTypeFilter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	events := NewEventStore(store)

	session := seedSession(t, store, models.SessionPending)
	require.NoError(t, events.AppendEvent(ctx, &models.Event{SessionID: session.ID, EventType: models.EventStepStarted}))
	require.NoError(t, events.AppendEvent(ctx, &models.Event{SessionID: session.ID, EventType: models.EventStepCompleted}))
	require.NoError(t, events.AppendEvent(ctx, &models.Event{SessionID: session.ID, EventType: models.EventStepStarted}))

	items, total, err := events.ListEvents(ctx, EventFilter{
		SessionID: session.ID, EventType: models.EventStepStarted, Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	// Unmatched type: empty page, not an error.
	items, total, err = events.ListEvents(ctx, EventFilter{
		SessionID: session.ID, EventType: "no_such_event", Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestCheckpointSupersession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	checkpoints := NewCheckpointStore(store)

	session := seedSession(t, store, models.SessionPending)

	first := &models.Checkpoint{SessionID: session.ID, LastCompletedSeq: 0}
	require.NoError(t, checkpoints.CreateCheckpoint(ctx, first))
	assert.Equal(t, models.CheckpointActive, first.Status)

	second := &models.Checkpoint{SessionID: session.ID, LastCompletedSeq: 1}
	require.NoError(t, checkpoints.CreateCheckpoint(ctx, second))

	active, err := checkpoints.GetActiveCheckpoint(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	ok, err := checkpoints.ConsumeCheckpoint(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Consuming twice is a no-op the second time.
	ok, err = checkpoints.ConsumeCheckpoint(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err = checkpoints.GetActiveCheckpoint(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestArtifactExactlyOneOfContentPath(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	artifacts := NewArtifactStore(store)

	session := seedSession(t, store, models.SessionPending)

	err := artifacts.CreateArtifact(ctx, &models.Artifact{
		SessionID: session.ID, ArtifactType: models.ArtifactDiff, Name: "both",
		Content: "x", FilePath: "/tmp/x",
	})
	assert.Error(t, err)

	err = artifacts.CreateArtifact(ctx, &models.Artifact{
		SessionID: session.ID, ArtifactType: models.ArtifactDiff, Name: "neither",
	})
	assert.Error(t, err)

	a := &models.Artifact{
		SessionID: session.ID, ArtifactType: models.ArtifactDiff, Name: "changes.diff",
		Content: "--- a\n+++ b\n",
	}
	require.NoError(t, artifacts.CreateArtifact(ctx, a))
	assert.Equal(t, models.DefaultFileFormat, a.FileFormat)
	assert.NotEmpty(t, a.ID)

	items, total, err := artifacts.ListArtifacts(ctx, ArtifactFilter{
		SessionID: session.ID, ArtifactType: models.ArtifactDiff, Page: 1, PerPage: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "changes.diff", items[0].Name)
}
