package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/conductor/pkg/models"
)

func TestGuardAcquireConflict(t *testing.T) {
	g := NewGuard()

	sig, err := g.Acquire("s1")
	require.NoError(t, err)
	require.NotNil(t, sig)

	_, err = g.Acquire("s1")
	require.Error(t, err)
	assert.Equal(t, models.KindConflict, models.KindOf(err))

	// A different session is unaffected.
	_, err = g.Acquire("s2")
	assert.NoError(t, err)
}

// TestGuardConcurrentAcquire spawns N concurrent acquires for one
// session; exactly one may win.
func TestGuardConcurrentAcquire(t *testing.T) {
	g := NewGuard()

	const n = 64
	var wg sync.WaitGroup
	results := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Acquire("contested")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, models.KindConflict, models.KindOf(err))
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestGuardReleaseIdempotent(t *testing.T) {
	g := NewGuard()

	_, err := g.Acquire("s1")
	require.NoError(t, err)
	assert.True(t, g.InFlight("s1"))

	g.Release("s1")
	assert.False(t, g.InFlight("s1"))

	// Second release is a no-op, never a panic or error.
	g.Release("s1")

	// Slot is reusable after release.
	_, err = g.Acquire("s1")
	assert.NoError(t, err)
}

func TestGuardSignals(t *testing.T) {
	g := NewGuard()

	// Signalling without an in-flight execution reports false.
	assert.False(t, g.SignalPause("s1"))
	assert.False(t, g.SignalCancel("s1"))

	sig, err := g.Acquire("s1")
	require.NoError(t, err)
	assert.False(t, sig.Interrupted())

	assert.True(t, g.SignalPause("s1"))
	assert.True(t, sig.PauseRequested())
	assert.False(t, sig.CancelRequested())
	assert.True(t, sig.Interrupted())

	assert.True(t, g.SignalCancel("s1"))
	assert.True(t, sig.CancelRequested())
}

func TestGuardOverdue(t *testing.T) {
	g := NewGuard()

	_, err := g.Acquire("cancelled")
	require.NoError(t, err)
	_, err = g.Acquire("running")
	require.NoError(t, err)

	g.SignalCancel("cancelled")

	// Nothing is overdue within a generous grace period.
	assert.Empty(t, g.Overdue(time.Minute))

	time.Sleep(10 * time.Millisecond)

	// With a tiny grace period only the cancelled execution shows up;
	// executions without a cancel signal never do.
	overdue := g.Overdue(time.Millisecond)
	assert.Equal(t, []string{"cancelled"}, overdue)
}
