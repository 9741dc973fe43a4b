// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thebtf/conductor/pkg/models"
)

// Signal carries the cooperative pause/cancel flags an in-flight
// executor polls between substeps. The guard never terminates an
// executor forcibly.
type Signal struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

// PauseRequested reports whether suspension has been requested.
func (s *Signal) PauseRequested() bool { return s.pause.Load() }

// CancelRequested reports whether cancellation has been requested.
func (s *Signal) CancelRequested() bool { return s.cancel.Load() }

// Interrupted reports whether either flag is set.
func (s *Signal) Interrupted() bool { return s.pause.Load() || s.cancel.Load() }

type execution struct {
	signal      *Signal
	startedAt   time.Time
	cancelledAt time.Time
}

// Guard enforces at-most-one active step execution per session. The
// map is keyed by session id, so unrelated sessions run fully in
// parallel; the mutex only covers the flag itself, never the
// execution's duration.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]*execution
}

// NewGuard creates an empty execution guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]*execution)}
}

// Acquire claims the session's execution slot. At most one concurrent
// caller per session id succeeds; the rest receive a conflict error.
func (g *Guard) Acquire(sessionID string) (*Signal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[sessionID]; held {
		return nil, models.Conflictf("an execution is already in flight for session %s", sessionID)
	}
	sig := &Signal{}
	g.inflight[sessionID] = &execution{signal: sig, startedAt: time.Now()}
	return sig, nil
}

// Release frees the session's execution slot. Idempotent: releasing an
// unheld slot is a no-op.
func (g *Guard) Release(sessionID string) {
	g.mu.Lock()
	delete(g.inflight, sessionID)
	g.mu.Unlock()
}

// InFlight reports whether the session currently holds the slot.
func (g *Guard) InFlight(sessionID string) bool {
	g.mu.Lock()
	_, held := g.inflight[sessionID]
	g.mu.Unlock()
	return held
}

// SignalPause requests cooperative suspension of the in-flight
// execution. Returns false if nothing is in flight.
func (g *Guard) SignalPause(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	exec, held := g.inflight[sessionID]
	if !held {
		return false
	}
	exec.signal.pause.Store(true)
	return true
}

// SignalCancel requests cooperative cancellation of the in-flight
// execution and starts the grace-period clock. Returns false if
// nothing is in flight.
func (g *Guard) SignalCancel(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	exec, held := g.inflight[sessionID]
	if !held {
		return false
	}
	exec.signal.cancel.Store(true)
	if exec.cancelledAt.IsZero() {
		exec.cancelledAt = time.Now()
	}
	return true
}

// Overdue returns the session ids whose cancel signal has gone
// unobserved for longer than grace. The janitor forces those
// executions to failed.
func (g *Guard) Overdue(grace time.Duration) []string {
	deadline := time.Now().Add(-grace)

	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for id, exec := range g.inflight {
		if !exec.cancelledAt.IsZero() && exec.cancelledAt.Before(deadline) {
			ids = append(ids, id)
		}
	}
	return ids
}
