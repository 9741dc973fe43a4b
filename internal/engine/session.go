// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	db "github.com/thebtf/conductor/internal/db/gorm"
	"github.com/thebtf/conductor/pkg/models"
)

// Config holds the tunables passed into the state machines. No
// ambient globals: main wires these from the loaded configuration.
type Config struct {
	// CancelGrace bounds how long an executor may run after a cancel
	// signal before the janitor forces the execution to failed.
	CancelGrace time.Duration
	// Background makes ExecuteStep return immediately with the step
	// in_progress while the executor runs in a goroutine.
	Background bool
}

// Manager owns the session lifecycle and composes the step registry,
// the execution guard and the event log.
type Manager struct {
	sessions    *db.SessionStore
	steps       *db.StepStore
	artifacts   *db.ArtifactStore
	checkpoints *db.CheckpointStore
	events      *EventLog
	guard       *Guard
	registry    *Registry
	executor    Executor
	cfg         Config
}

// NewManager wires a session manager over the given stores and
// collaborators.
func NewManager(store *db.Store, events *EventLog, registry *Registry, executor Executor, cfg Config) *Manager {
	return &Manager{
		sessions:    db.NewSessionStore(store),
		steps:       db.NewStepStore(store),
		artifacts:   db.NewArtifactStore(store),
		checkpoints: db.NewCheckpointStore(store),
		events:      events,
		guard:       NewGuard(),
		registry:    registry,
		executor:    executor,
		cfg:         cfg,
	}
}

// Guard exposes the execution guard (used by tests and the janitor).
func (m *Manager) Guard() *Guard { return m.guard }

// CreateRequest is the input to Create.
type CreateRequest struct {
	SessionType models.SessionType
	Mode        models.SessionMode
	ProjectPath string
	Config      models.JSONMap
}

// Create validates the request, persists a pending session and
// materializes its step plan from the registry. Validation failures
// reject before any state is written.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	if !models.ValidSessionType(req.SessionType) {
		return nil, models.InvalidArgumentf("unsupported session type %q", req.SessionType)
	}
	if !models.ValidSessionMode(req.Mode) {
		return nil, models.InvalidArgumentf("unsupported mode %q", req.Mode)
	}
	if req.ProjectPath == "" {
		return nil, models.InvalidArgumentf("project_path must not be empty")
	}

	plan, err := m.registry.Plan(req.SessionType)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		SessionType: req.SessionType,
		Mode:        req.Mode,
		ProjectPath: req.ProjectPath,
		Config:      req.Config,
		Status:      models.SessionPending,
	}
	steps := make([]*models.Step, len(plan))
	for i, def := range plan {
		steps[i] = &models.Step{
			Code:     def.Code,
			Name:     def.Name,
			Sequence: i,
			Status:   models.StepPending,
		}
	}

	if err := m.sessions.CreateSession(ctx, session, steps); err != nil {
		return nil, models.Internalf(err, "create session")
	}

	m.events.mustAppend(ctx, session.ID, "", models.EventSessionCreated,
		models.JSONMap{"session_type": session.SessionType, "steps": len(steps)}, "")

	log.Info().
		Str("sessionId", session.ID).
		Str("sessionType", string(session.SessionType)).
		Int("steps", len(steps)).
		Msg("Session created")
	return session, nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, models.Internalf(err, "get session")
	}
	if session == nil {
		return nil, models.NotFoundf("session %s not found", id)
	}
	return session, nil
}

// ListFilter selects sessions for List.
type ListFilter struct {
	Status      models.SessionStatus
	SessionType models.SessionType
	Page        int
	PerPage     int
}

// List returns one page of sessions matching the filter.
func (m *Manager) List(ctx context.Context, f ListFilter) ([]*models.Session, models.Pagination, error) {
	if err := models.ValidatePageParams(f.Page, f.PerPage); err != nil {
		return nil, models.Pagination{}, err
	}
	if f.Status != "" && !models.ValidSessionStatus(f.Status) {
		return nil, models.Pagination{}, models.InvalidArgumentf("unknown status filter %q", f.Status)
	}
	if f.SessionType != "" && !models.ValidSessionType(f.SessionType) {
		return nil, models.Pagination{}, models.InvalidArgumentf("unknown session type filter %q", f.SessionType)
	}
	sessions, total, err := m.sessions.ListSessions(ctx, db.SessionFilter{
		Status:      f.Status,
		SessionType: f.SessionType,
		Page:        f.Page,
		PerPage:     f.PerPage,
	})
	if err != nil {
		return nil, models.Pagination{}, models.Internalf(err, "list sessions")
	}
	return sessions, models.NewPagination(f.Page, f.PerPage, total), nil
}

// Start transitions a pending session to in_progress, making its steps
// executable.
func (m *Manager) Start(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := m.sessions.TransitionSession(ctx, id,
		[]models.SessionStatus{models.SessionPending}, models.SessionInProgress, nil)
	if err != nil {
		return nil, models.Internalf(err, "start session")
	}
	if !ok {
		return nil, models.InvalidStatef("cannot start session in status %q", session.Status)
	}

	m.events.mustAppend(ctx, id, "", models.EventSessionStarted, nil, "")
	return m.Get(ctx, id)
}

// Pause suspends an in_progress session: the in-flight execution (if
// any) is signalled to stop cooperatively, a checkpoint is persisted
// and the session transitions to paused.
func (m *Manager) Pause(ctx context.Context, id, reason string) (*models.Checkpoint, error) {
	session, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := m.sessions.TransitionSession(ctx, id,
		[]models.SessionStatus{models.SessionInProgress}, models.SessionPaused, nil)
	if err != nil {
		return nil, models.Internalf(err, "pause session")
	}
	if !ok {
		return nil, models.InvalidStatef("cannot pause session in status %q", session.Status)
	}

	m.guard.SignalPause(id)

	checkpoint := &models.Checkpoint{
		SessionID:        id,
		LastCompletedSeq: m.lastCompletedSeq(ctx, id),
		ConfigSnapshot:   session.Config.Clone(),
		Reason:           reason,
	}
	if err := m.checkpoints.CreateCheckpoint(ctx, checkpoint); err != nil {
		return nil, models.Internalf(err, "persist checkpoint")
	}

	data := models.JSONMap{"checkpoint_id": checkpoint.ID}
	m.events.mustAppend(ctx, id, "", models.EventSessionPaused, data, reason)

	log.Info().Str("sessionId", id).Str("checkpointId", checkpoint.ID).Msg("Session paused")
	return checkpoint, nil
}

// Resume transitions a paused session back to in_progress. When a
// checkpoint id is supplied it must match the active checkpoint; the
// checkpoint is consumed either way.
func (m *Manager) Resume(ctx context.Context, id, checkpointID string) (*models.Session, error) {
	session, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaused {
		return nil, models.InvalidStatef("cannot resume session in status %q", session.Status)
	}

	active, err := m.checkpoints.GetActiveCheckpoint(ctx, id)
	if err != nil {
		return nil, models.Internalf(err, "load checkpoint")
	}
	if checkpointID != "" && (active == nil || active.ID != checkpointID) {
		return nil, models.NotFoundf("checkpoint %s not found for session %s", checkpointID, id)
	}

	ok, err := m.sessions.TransitionSession(ctx, id,
		[]models.SessionStatus{models.SessionPaused}, models.SessionInProgress, nil)
	if err != nil {
		return nil, models.Internalf(err, "resume session")
	}
	if !ok {
		return nil, models.InvalidStatef("session %s is no longer paused", id)
	}

	if active != nil {
		if _, err := m.checkpoints.ConsumeCheckpoint(ctx, active.ID); err != nil {
			return nil, models.Internalf(err, "consume checkpoint")
		}
	}

	m.events.mustAppend(ctx, id, "", models.EventSessionResumed, nil, "")

	// A step may have settled while the session was paused (an executor
	// that finished without observing the pause flag); its session-level
	// settlement no-opped against the paused status, so re-run it here.
	m.settle(ctx, session)

	return m.Get(ctx, id)
}

// settle re-evaluates session-level settlement against the current
// step states: a failed step fails the session, a fully terminal plan
// completes it. Both transitions are conditional, so calling this on
// an already-settled or still-running session is a no-op.
func (m *Manager) settle(ctx context.Context, session *models.Session) {
	steps, err := m.steps.AllSteps(ctx, session.ID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("Settlement check: failed to load steps")
		return
	}
	for _, step := range steps {
		if step.Status == models.StepFailed {
			m.failSessionForStep(ctx, session, step)
			return
		}
	}
	m.checkCompletion(ctx, session)
}

// Cancel aborts a session from any non-terminal state. In-flight work
// is signalled cooperatively; the janitor forces it to failed if the
// signal goes unobserved past the grace period.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, models.InvalidStatef("cannot cancel session in status %q", session.Status)
	}

	m.guard.SignalCancel(id)

	ok, err := m.sessions.TransitionSession(ctx, id,
		[]models.SessionStatus{models.SessionPending, models.SessionInProgress, models.SessionPaused},
		models.SessionCancelled, nil)
	if err != nil {
		return nil, models.Internalf(err, "cancel session")
	}
	if !ok {
		return nil, models.InvalidStatef("session %s already reached a terminal state", id)
	}

	m.events.mustAppend(ctx, id, "", models.EventSessionCancelled, nil, "")

	log.Info().Str("sessionId", id).Msg("Session cancelled")
	return m.Get(ctx, id)
}

// Delete removes a session and all of its steps, events, artifacts and
// checkpoints.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ok, err := m.sessions.DeleteSession(ctx, id)
	if err != nil {
		return models.Internalf(err, "delete session")
	}
	if !ok {
		return models.NotFoundf("session %s not found", id)
	}
	m.guard.Release(id)
	return nil
}

// Steps returns one page of a session's plan ordered by sequence.
func (m *Manager) Steps(ctx context.Context, id string, page, perPage int) ([]*models.Step, models.Pagination, error) {
	if err := models.ValidatePageParams(page, perPage); err != nil {
		return nil, models.Pagination{}, err
	}
	if _, err := m.Get(ctx, id); err != nil {
		return nil, models.Pagination{}, err
	}
	steps, total, err := m.steps.ListSteps(ctx, id, page, perPage)
	if err != nil {
		return nil, models.Pagination{}, models.Internalf(err, "list steps")
	}
	return steps, models.NewPagination(page, perPage, total), nil
}

// Events returns one page of a session's event log.
func (m *Manager) Events(ctx context.Context, id string, q EventQuery) ([]*models.Event, models.Pagination, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, models.Pagination{}, err
	}
	return m.events.Query(ctx, id, q)
}

// Artifacts returns one page of a session's artifacts.
func (m *Manager) Artifacts(ctx context.Context, id string, artifactType models.ArtifactType, page, perPage int) ([]*models.Artifact, models.Pagination, error) {
	if err := models.ValidatePageParams(page, perPage); err != nil {
		return nil, models.Pagination{}, err
	}
	if artifactType != "" && !models.ValidArtifactType(artifactType) {
		return nil, models.Pagination{}, models.InvalidArgumentf("unknown artifact type filter %q", artifactType)
	}
	if _, err := m.Get(ctx, id); err != nil {
		return nil, models.Pagination{}, err
	}
	artifacts, total, err := m.artifacts.ListArtifacts(ctx, db.ArtifactFilter{
		SessionID:    id,
		ArtifactType: artifactType,
		Page:         page,
		PerPage:      perPage,
	})
	if err != nil {
		return nil, models.Pagination{}, models.Internalf(err, "list artifacts")
	}
	return artifacts, models.NewPagination(page, perPage, total), nil
}

// Sweep forces executions whose cancel signal has gone unobserved past
// the grace period: the stuck step and, if still live, the session are
// failed and the guard slot is released. Run periodically by main.
func (m *Manager) Sweep(ctx context.Context) {
	const reason = "forced cancellation timeout"

	for _, sessionID := range m.guard.Overdue(m.cfg.CancelGrace) {
		next, err := m.steps.NextPending(ctx, sessionID)
		if err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("Sweep: failed to load in-flight step")
			continue
		}
		if next != nil && next.Status == models.StepInProgress {
			ok, err := m.steps.TransitionStep(ctx, next.ID,
				[]models.StepStatus{models.StepInProgress}, models.StepFailed,
				&db.StepUpdate{ErrorMessage: reason})
			if err != nil {
				log.Error().Err(err).Str("sessionId", sessionID).Msg("Sweep: failed to fail step")
				continue
			}
			if ok {
				m.events.mustAppend(ctx, sessionID, next.ID, models.EventStepFailed,
					models.JSONMap{"step_code": next.Code}, reason)
			}
		}

		m.guard.Release(sessionID)

		ok, err := m.sessions.TransitionSession(ctx, sessionID,
			[]models.SessionStatus{models.SessionInProgress, models.SessionPaused},
			models.SessionFailed, &db.SessionUpdate{ErrorMessage: reason})
		if err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("Sweep: failed to fail session")
			continue
		}
		if ok {
			m.events.mustAppend(ctx, sessionID, "", models.EventSessionFailed, nil, reason)
		}

		log.Warn().Str("sessionId", sessionID).Msg("Forced overdue execution to failed")
	}
}

// lastCompletedSeq returns the highest sequence among completed steps,
// or -1 when none completed yet.
func (m *Manager) lastCompletedSeq(ctx context.Context, sessionID string) int {
	steps, err := m.steps.AllSteps(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to load steps for checkpoint")
		return -1
	}
	last := -1
	for _, step := range steps {
		if step.Status == models.StepCompleted && step.Sequence > last {
			last = step.Sequence
		}
	}
	return last
}

// checkCompletion auto-completes a session once every step is terminal
// and no non-skippable step failed. Called after each step completion.
func (m *Manager) checkCompletion(ctx context.Context, session *models.Session) {
	steps, err := m.steps.AllSteps(ctx, session.ID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("Completion check: failed to load steps")
		return
	}

	completed := 0
	for _, step := range steps {
		if !step.Status.Terminal() {
			return
		}
		switch step.Status {
		case models.StepCompleted:
			completed++
		case models.StepFailed:
			// The failure path owns this transition.
			return
		}
	}

	result := models.JSONMap{
		"steps_total":     len(steps),
		"steps_completed": completed,
	}
	ok, err := m.sessions.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionInProgress}, models.SessionCompleted,
		&db.SessionUpdate{Result: result})
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("Completion check: transition failed")
		return
	}
	if ok {
		m.events.mustAppend(ctx, session.ID, "", models.EventSessionCompleted, result, "")
		log.Info().Str("sessionId", session.ID).Msg("Session completed")
	}
}

// failSessionForStep fails the session after a non-skippable step
// failure, carrying the step's error message up.
func (m *Manager) failSessionForStep(ctx context.Context, session *models.Session, step *models.Step) {
	ok, err := m.sessions.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionInProgress}, models.SessionFailed,
		&db.SessionUpdate{ErrorMessage: step.ErrorMessage})
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("Failure check: transition failed")
		return
	}
	if ok {
		m.events.mustAppend(ctx, session.ID, "", models.EventSessionFailed,
			models.JSONMap{"step_code": step.Code}, step.ErrorMessage)
		log.Warn().
			Str("sessionId", session.ID).
			Str("stepCode", step.Code).
			Msg("Session failed")
	}
}
