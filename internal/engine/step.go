// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	db "github.com/thebtf/conductor/internal/db/gorm"
	"github.com/thebtf/conductor/pkg/models"
)

// ExecuteStep runs the named step of a session through the bound
// executor. Strictly sequential: only the lowest-sequence non-terminal
// step may execute, and only while the session is in_progress. State
// checks happen before the guard is acquired; executor failures are
// recorded in the step (and its mandatory event) rather than returned
// as API errors.
func (m *Manager) ExecuteStep(ctx context.Context, sessionID, code string, inputs models.JSONMap) (*models.Step, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	step, err := m.steps.GetStep(ctx, sessionID, code)
	if err != nil {
		return nil, models.Internalf(err, "get step")
	}
	if step == nil {
		return nil, models.NotFoundf("step %s not found in session %s", code, sessionID)
	}

	if session.Status != models.SessionInProgress {
		return nil, models.InvalidStatef("cannot execute steps while session is %q", session.Status)
	}
	if step.Status.Terminal() {
		return nil, models.InvalidStatef("step %s already %s", code, step.Status)
	}

	next, err := m.steps.NextPending(ctx, sessionID)
	if err != nil {
		return nil, models.Internalf(err, "resolve next step")
	}
	if next == nil || next.ID != step.ID {
		return nil, models.InvalidStatef("step %s is out of sequence; next is %s", code, nextCode(next))
	}

	sig, err := m.guard.Acquire(sessionID)
	if err != nil {
		return nil, err
	}

	ok, err := m.steps.TransitionStep(ctx, step.ID,
		[]models.StepStatus{models.StepPending}, models.StepInProgress,
		&db.StepUpdate{InputData: inputs})
	if err != nil {
		m.guard.Release(sessionID)
		return nil, models.Internalf(err, "start step")
	}
	if !ok {
		// Lost a race with another execution despite the guard; the
		// conditional update kept the write from clobbering it.
		m.guard.Release(sessionID)
		return nil, models.Conflictf("step %s was picked up by another execution", code)
	}

	step, err = m.reloadStep(ctx, sessionID, code)
	if err != nil {
		m.guard.Release(sessionID)
		return nil, err
	}

	m.events.mustAppend(ctx, sessionID, step.ID, models.EventStepStarted,
		models.JSONMap{"step_code": code, "sequence": step.Sequence}, "")

	params := session.Config.Merge(inputs)

	if m.cfg.Background {
		go func() {
			// The request context dies with the HTTP response; the
			// execution must not.
			bgCtx := context.WithoutCancel(ctx)
			if _, err := m.runStep(bgCtx, session, step, params, sig); err != nil {
				log.Error().Err(err).
					Str("sessionId", sessionID).
					Str("stepCode", code).
					Msg("Background step execution error")
			}
		}()
		return step, nil
	}

	return m.runStep(ctx, session, step, params, sig)
}

// runStep drives the executor and settles the step. Every path
// releases the guard, and every failure path appends its event before
// returning: a failure signal is never discarded undurably.
func (m *Manager) runStep(ctx context.Context, session *models.Session, step *models.Step, params models.JSONMap, sig *Signal) (*models.Step, error) {
	result, execErr := m.executor.Execute(ctx, Request{
		SessionID:   session.ID,
		SessionType: session.SessionType,
		Mode:        session.Mode,
		ProjectPath: session.ProjectPath,
		StepCode:    step.Code,
		Params:      params,
	}, sig)

	switch {
	case errors.Is(execErr, ErrSuspended):
		return m.suspendStep(ctx, session, step)
	case execErr != nil:
		return m.failStep(ctx, session, step, execErr)
	default:
		return m.completeStep(ctx, session, step, result)
	}
}

// suspendStep rolls a pause-interrupted step back to pending so resume
// re-executes it from scratch.
func (m *Manager) suspendStep(ctx context.Context, session *models.Session, step *models.Step) (*models.Step, error) {
	defer m.guard.Release(session.ID)

	_, err := m.steps.TransitionStep(ctx, step.ID,
		[]models.StepStatus{models.StepInProgress}, models.StepPending,
		&db.StepUpdate{ClearStarted: true})
	if err != nil {
		return nil, models.Internalf(err, "suspend step")
	}

	m.events.mustAppend(ctx, session.ID, step.ID, models.EventStepSuspended,
		models.JSONMap{"step_code": step.Code}, "execution suspended by pause")

	log.Info().Str("sessionId", session.ID).Str("stepCode", step.Code).Msg("Step suspended")
	return m.reloadStep(ctx, session.ID, step.Code)
}

// failStep records an executor failure. Skippable steps settle as
// skipped instead of failed and never take the session down. The
// failure event is written before anything is returned to the caller.
func (m *Manager) failStep(ctx context.Context, session *models.Session, step *models.Step, execErr error) (*models.Step, error) {
	msg := execErr.Error()
	if errors.Is(execErr, ErrCancelled) {
		msg = "execution cancelled"
	}

	def, _ := m.registry.Lookup(session.SessionType, step.Code)
	target, eventType := models.StepFailed, models.EventStepFailed
	if def.Skippable {
		target, eventType = models.StepSkipped, models.EventStepSkipped
	}

	_, err := m.steps.TransitionStep(ctx, step.ID,
		[]models.StepStatus{models.StepInProgress}, target,
		&db.StepUpdate{ErrorMessage: msg})
	if err != nil {
		m.guard.Release(session.ID)
		return nil, models.Internalf(err, "record step failure")
	}

	m.events.mustAppend(ctx, session.ID, step.ID, eventType,
		models.JSONMap{"step_code": step.Code}, msg)

	m.guard.Release(session.ID)

	reloaded, reloadErr := m.reloadStep(ctx, session.ID, step.Code)
	if reloadErr != nil {
		return nil, reloadErr
	}
	if def.Skippable {
		m.checkCompletion(ctx, session)
	} else {
		m.failSessionForStep(ctx, session, reloaded)
	}

	log.Warn().
		Str("sessionId", session.ID).
		Str("stepCode", step.Code).
		Str("status", string(target)).
		Str("error", msg).
		Msg("Step execution failed")
	return reloaded, nil
}

// completeStep records a successful execution: output, artifacts, the
// step_completed event, then the session completion check.
func (m *Manager) completeStep(ctx context.Context, session *models.Session, step *models.Step, result *Result) (*models.Step, error) {
	var output models.JSONMap
	if result != nil {
		output = result.Output
	}

	_, err := m.steps.TransitionStep(ctx, step.ID,
		[]models.StepStatus{models.StepInProgress}, models.StepCompleted,
		&db.StepUpdate{OutputData: output})
	if err != nil {
		m.guard.Release(session.ID)
		return nil, models.Internalf(err, "record step completion")
	}

	if result != nil {
		for _, artifact := range result.Artifacts {
			artifact.SessionID = session.ID
			artifact.StepID = step.ID
			if err := m.artifacts.CreateArtifact(ctx, artifact); err != nil {
				log.Error().Err(err).
					Str("sessionId", session.ID).
					Str("artifact", artifact.Name).
					Msg("Failed to store artifact")
			}
		}
	}

	m.events.mustAppend(ctx, session.ID, step.ID, models.EventStepCompleted,
		models.JSONMap{"step_code": step.Code}, "")

	m.guard.Release(session.ID)
	m.checkCompletion(ctx, session)

	return m.reloadStep(ctx, session.ID, step.Code)
}

func (m *Manager) reloadStep(ctx context.Context, sessionID, code string) (*models.Step, error) {
	step, err := m.steps.GetStep(ctx, sessionID, code)
	if err != nil {
		return nil, models.Internalf(err, "reload step")
	}
	if step == nil {
		return nil, models.NotFoundf("step %s not found in session %s", code, sessionID)
	}
	return step, nil
}

func nextCode(step *models.Step) string {
	if step == nil {
		return "none"
	}
	return step.Code
}
