// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"context"
	"errors"

	"github.com/thebtf/conductor/pkg/models"
)

// Sentinel errors an executor returns after observing a guard signal
// at a checkpointable boundary.
var (
	// ErrSuspended means the executor stopped cleanly because a pause
	// was requested; the step rolls back to pending for re-execution
	// after resume.
	ErrSuspended = errors.New("execution suspended by pause signal")

	// ErrCancelled means the executor stopped because cancellation was
	// requested; the step is recorded as failed.
	ErrCancelled = errors.New("execution cancelled")
)

// Request is the input handed to an executor: the step's inputs merged
// over the session config, plus enough identity to dispatch on.
type Request struct {
	SessionID   string
	SessionType models.SessionType
	Mode        models.SessionMode
	ProjectPath string
	StepCode    string
	Params      models.JSONMap
}

// Result is a successful executor outcome.
type Result struct {
	Output    models.JSONMap
	Artifacts []*models.Artifact
}

// Executor runs the business logic bound to a step. Implementations
// must poll sig at safe boundaries and return ErrSuspended or
// ErrCancelled when a flag is observed; the engine never kills an
// executor pre-emptively.
type Executor interface {
	Execute(ctx context.Context, req Request, sig *Signal) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request, sig *Signal) (*Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req Request, sig *Signal) (*Result, error) {
	return f(ctx, req, sig)
}

// NopExecutor completes every step immediately with an empty output.
// Useful as a default wiring and in tests.
type NopExecutor struct{}

// Execute implements Executor.
func (NopExecutor) Execute(ctx context.Context, req Request, sig *Signal) (*Result, error) {
	if sig.CancelRequested() {
		return nil, ErrCancelled
	}
	if sig.PauseRequested() {
		return nil, ErrSuspended
	}
	return &Result{Output: models.JSONMap{"step": req.StepCode}}, nil
}
