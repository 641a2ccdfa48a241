package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{"purge", ActionPurge},
		{"shutdownNow", ActionShutdownNow},
		{"shutdown-now", ActionShutdownNow},
		{"RESTART", ActionRestart},
		{"clear", ActionClear},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAction("reboot")
	assert.ErrorIs(t, err, errspkg.ErrUnknownAction)
}

func TestDispatchUnknownAction(t *testing.T) {
	err := Dispatch("async", NewAsync(0, Settings{}), Action("reboot"))
	assert.ErrorIs(t, err, errspkg.ErrUnknownAction)
}

func TestDispatchSkipsAsync(t *testing.T) {
	a := NewAsync(2, Settings{})
	for _, action := range Actions {
		assert.NoError(t, Dispatch("async", a, action))
	}
	assert.Equal(t, 2, a.ConcurrencyLimit())
}

func TestDispatchLifecycle(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})

	require.NoError(t, Dispatch("pool", p, ActionStart))
	assert.False(t, p.IsShutdown())

	require.NoError(t, Dispatch("pool", p, ActionShutdown))
	assert.True(t, p.IsShutdown())
	require.Eventually(t, p.IsTerminated, waitFor, tick)

	require.NoError(t, Dispatch("pool", p, ActionShutdown))
	require.NoError(t, Dispatch("pool", p, ActionShutdownNow))

	require.NoError(t, Dispatch("pool", p, ActionStart))
	assert.False(t, p.IsShutdown())
}

func TestDispatchShutdownNowCancelsQueuedTasks(t *testing.T) {
	s := newTestScheduler(t, DefaultSchedulePolicy())
	f, err := s.Schedule(func() {}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, Dispatch("scheduler", s, ActionShutdownNow))
	assert.True(t, f.Cancelled())
	assert.True(t, s.IsShutdown())
}

func TestDispatchPurgeAndClear(t *testing.T) {
	s := newTestScheduler(t, SchedulePolicy{})
	f, err := s.Schedule(func() {}, time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule(func() {}, time.Hour)
	require.NoError(t, err)
	f.Cancel()

	require.NoError(t, Dispatch("scheduler", s, ActionPurge))
	assert.Equal(t, 1, s.PoolStats().QueueSize)
	require.NoError(t, Dispatch("scheduler", s, ActionClear))
	assert.Equal(t, 0, s.PoolStats().QueueSize)
}

type lifecycleState struct {
	shutdown   bool
	terminated bool
}

func stateOf(p *Pool) lifecycleState {
	return lifecycleState{shutdown: p.IsShutdown(), terminated: p.IsTerminated()}
}

func TestRestartEqualsShutdownThenStart(t *testing.T) {
	for _, running := range []bool{true, false} {
		viaRestart := newTestPool(t, PoolConfig{MaxPoolSize: 1})
		viaSteps := newTestPool(t, PoolConfig{MaxPoolSize: 1})
		if !running {
			viaRestart.Shutdown()
			viaSteps.Shutdown()
		}

		require.NoError(t, Dispatch("a", viaRestart, ActionRestart))
		require.NoError(t, Dispatch("b", viaSteps, ActionShutdown))
		require.NoError(t, Dispatch("b", viaSteps, ActionStart))

		assert.Equal(t, stateOf(viaSteps), stateOf(viaRestart), "running=%v", running)
		assert.False(t, viaRestart.IsShutdown())
	}
}

type failingPool struct {
	*Pool
}

func (failingPool) Initialize() error { return assert.AnError }

func TestDispatchStartWrapsInitializeError(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})
	p.Shutdown()

	err := Dispatch("broken", failingPool{p}, ActionStart)
	assert.ErrorIs(t, err, errspkg.ErrLifecycle)
	assert.ErrorIs(t, err, assert.AnError)
}
