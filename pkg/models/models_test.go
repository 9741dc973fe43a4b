package models

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJSONMapScan tests JSONMap scanning from database values.
func TestJSONMapScan(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected JSONMap
		wantErr  bool
	}{
		{"nil value", nil, nil, false},
		{"empty bytes", []byte{}, nil, false},
		{"bytes", []byte(`{"k":"v"}`), JSONMap{"k": "v"}, false},
		{"string", `{"n":1}`, JSONMap{"n": float64(1)}, false},
		{"unsupported type", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m JSONMap
			err := m.Scan(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

// TestJSONMapValue tests JSONMap serialization round-trip.
func TestJSONMapValue(t *testing.T) {
	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = JSONMap{"key": "value"}.Value()
	require.NoError(t, err)

	var back JSONMap
	require.NoError(t, back.Scan(v))
	assert.Equal(t, JSONMap{"key": "value"}, back)
}

func TestJSONMapMerge(t *testing.T) {
	base := JSONMap{"a": 1, "b": 2}
	merged := base.Merge(JSONMap{"b": 3, "c": 4})

	assert.Equal(t, JSONMap{"a": 1, "b": 3, "c": 4}, merged)
	// Merge never mutates the receiver.
	assert.Equal(t, JSONMap{"a": 1, "b": 2}, base)

	assert.Nil(t, JSONMap(nil).Merge(nil))
	assert.Equal(t, JSONMap{"x": 1}, JSONMap(nil).Merge(JSONMap{"x": 1}))
}

// TestValidEventType tests the event type token pattern.
func TestValidEventType(t *testing.T) {
	valid := []string{"workflow_started", "step_failed", "retry_2", "a"}
	for _, v := range valid {
		assert.True(t, ValidEventType(v), v)
	}

	invalid := []string{"", "Workflow_Started", "step failed", "step-failed", "évent", "step.failed"}
	for _, v := range invalid {
		assert.False(t, ValidEventType(v), v)
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, SessionPending.Terminal())
	assert.False(t, SessionInProgress.Terminal())
	assert.False(t, SessionPaused.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionFailed.Terminal())
	assert.True(t, SessionCancelled.Terminal())
}

func TestStepStatusTerminal(t *testing.T) {
	assert.False(t, StepPending.Terminal())
	assert.False(t, StepInProgress.Terminal())
	assert.True(t, StepCompleted.Terminal())
	assert.True(t, StepFailed.Terminal())
	assert.True(t, StepSkipped.Terminal())
}

func TestValidSessionTypeAndMode(t *testing.T) {
	assert.True(t, ValidSessionType(SessionTypeMaintenance))
	assert.True(t, ValidSessionType(SessionTypeTestGeneration))
	assert.True(t, ValidSessionType(SessionTypeDeployment))
	assert.False(t, ValidSessionType("refactoring"))

	assert.True(t, ValidSessionMode(ModeInteractive))
	assert.True(t, ValidSessionMode(ModeAutonomous))
	assert.True(t, ValidSessionMode(ModeAnalysisOnly))
	assert.False(t, ValidSessionMode("batch"))
}

// TestErrorKinds tests kind extraction and HTTP status mapping.
func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		kind   ErrorKind
		status int
	}{
		{InvalidArgumentf("bad %s", "input"), KindInvalidArgument, http.StatusUnprocessableEntity},
		{NotFoundf("session %s not found", "x"), KindNotFound, http.StatusNotFound},
		{InvalidStatef("cannot pause"), KindInvalidState, http.StatusConflict},
		{Conflictf("execution in flight"), KindConflict, http.StatusConflict},
		{Internalf(errors.New("disk full"), "update failed"), KindInternal, http.StatusInternalServerError},
		{errors.New("plain error"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err))
		assert.Equal(t, tt.status, HTTPStatus(KindOf(tt.err)))
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Internalf(inner, "wrapped")
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "wrapped", DetailOf(err))
}
