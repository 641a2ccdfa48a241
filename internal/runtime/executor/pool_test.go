package executor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestPool(t *testing.T, cfg PoolConfig) *Pool {
	t.Helper()
	p, err := NewPool(cfg, Settings{WorkerNamePrefix: "test-"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.ShutdownNow() })
	return p
}

// occupy submits a task that holds the only worker until release is closed.
func occupy(t *testing.T, p *Pool) chan struct{} {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Execute(func() {
		close(started)
		<-release
	}))
	<-started
	return release
}

func TestPoolRunsTasks(t *testing.T) {
	p := newTestPool(t, PoolConfig{CorePoolSize: 1, MaxPoolSize: 2})

	var ran atomic.Int32
	futures := make([]*Future, 0, 10)
	for range 10 {
		f, err := p.Submit(func() { ran.Add(1) })
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		<-f.Done()
	}
	assert.Equal(t, int32(10), ran.Load())

	require.Eventually(t, func() bool { return p.PoolStats().CompletedTaskCount == 10 }, waitFor, tick)
	stats := p.PoolStats()
	assert.Equal(t, int64(10), stats.TaskCount)
	assert.Equal(t, 0, stats.QueueSize)
	assert.Equal(t, -1, stats.QueueRemaining)
	assert.GreaterOrEqual(t, stats.LargestPoolSize, 1)
}

func TestPoolQueueCapacityRejects(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1, QueueCapacity: 2})
	release := occupy(t, p)
	defer close(release)

	require.NoError(t, p.Execute(func() {}))
	require.Eventually(t, func() bool { return p.PoolStats().QueueSize == 0 }, waitFor, tick)

	require.NoError(t, p.Execute(func() {}))
	require.NoError(t, p.Execute(func() {}))
	err := p.Execute(func() {})
	assert.ErrorIs(t, err, errspkg.ErrRejected)

	stats := p.PoolStats()
	assert.Equal(t, 2, stats.QueueSize)
	assert.Equal(t, 0, stats.QueueRemaining)
}

func TestPoolPurgeAndClear(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})
	release := occupy(t, p)
	defer close(release)

	require.NoError(t, p.Execute(func() {}))
	require.Eventually(t, func() bool { return p.PoolStats().QueueSize == 0 }, waitFor, tick)

	b, err := p.Submit(func() {})
	require.NoError(t, err)
	_, err = p.Submit(func() {})
	require.NoError(t, err)

	assert.True(t, b.Cancel())
	assert.False(t, b.Cancel())
	assert.Equal(t, 2, p.PoolStats().QueueSize)

	p.Purge()
	assert.Equal(t, 1, p.PoolStats().QueueSize)

	p.ClearQueue()
	assert.Equal(t, 0, p.PoolStats().QueueSize)
}

func TestPoolShutdownRunsQueuedTasks(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})
	release := occupy(t, p)

	var ran atomic.Int32
	for range 3 {
		require.NoError(t, p.Execute(func() { ran.Add(1) }))
	}

	p.Shutdown()
	assert.True(t, p.IsShutdown())
	assert.True(t, p.IsTerminating())
	assert.False(t, p.IsTerminated())
	assert.ErrorIs(t, p.Execute(func() {}), errspkg.ErrRejected)

	close(release)
	require.Eventually(t, p.IsTerminated, waitFor, tick)
	assert.False(t, p.IsTerminating())
	assert.Equal(t, int32(3), ran.Load())
}

func TestPoolShutdownWaitsWhenConfigured(t *testing.T) {
	p, err := NewPool(PoolConfig{MaxPoolSize: 1}, Settings{WaitForTasksOnShutdown: true, AwaitTermination: time.Second}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Execute(func() { time.Sleep(20 * time.Millisecond) }))
	p.Shutdown()
	assert.True(t, p.IsTerminated())
}

func TestPoolShutdownNowReturnsQueuedTasks(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})
	release := occupy(t, p)

	require.NoError(t, p.Execute(func() {}))
	require.Eventually(t, func() bool { return p.PoolStats().QueueSize == 0 }, waitFor, tick)

	var ran atomic.Int32
	require.NoError(t, p.Execute(func() { ran.Add(1) }))
	require.NoError(t, p.Execute(func() { ran.Add(1) }))

	tasks := p.ShutdownNow()
	assert.Len(t, tasks, 2)
	assert.Nil(t, p.ShutdownNow())

	close(release)
	require.Eventually(t, p.IsTerminated, waitFor, tick)
	assert.Equal(t, int32(0), ran.Load())
}

func TestPoolInitializeAfterShutdown(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 2})
	p.Shutdown()
	require.Eventually(t, p.IsTerminated, waitFor, tick)

	require.NoError(t, p.Initialize())
	assert.False(t, p.IsShutdown())
	assert.False(t, p.IsTerminated())

	f, err := p.Submit(func() {})
	require.NoError(t, err)
	<-f.Done()
}

func TestPoolSetPoolConfig(t *testing.T) {
	p := newTestPool(t, PoolConfig{CorePoolSize: 1, MaxPoolSize: 2, KeepAlive: time.Second})

	require.NoError(t, p.SetPoolConfig(PoolConfig{CorePoolSize: 2, MaxPoolSize: 4, KeepAlive: time.Second}))
	assert.Equal(t, 4, p.PoolConfig().MaxPoolSize)

	require.NoError(t, p.SetPoolConfig(PoolConfig{CorePoolSize: 2, MaxPoolSize: 4, KeepAlive: 2 * time.Second, AllowCoreThreadTimeOut: true}))
	f, err := p.Submit(func() {})
	require.NoError(t, err)
	<-f.Done()

	err = p.SetPoolConfig(PoolConfig{CorePoolSize: 5, MaxPoolSize: 4})
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)
	assert.Equal(t, 4, p.PoolConfig().MaxPoolSize)
}

func TestPoolKeepsRunningTaskAcrossWorkerSwap(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})
	release := occupy(t, p)

	done := make(chan struct{})
	require.NoError(t, p.Execute(func() { close(done) }))
	require.Eventually(t, func() bool { return p.PoolStats().QueueSize == 0 }, waitFor, tick)

	require.NoError(t, p.SetPoolConfig(PoolConfig{MaxPoolSize: 1, KeepAlive: 3 * time.Second}))
	close(release)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("queued task was lost when workers were swapped")
	}
}

func TestNewPoolValidates(t *testing.T) {
	_, err := NewPool(PoolConfig{MaxPoolSize: 0}, Settings{}, nil)
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)

	_, err = NewPool(PoolConfig{MaxPoolSize: 1}, Settings{AwaitTermination: -time.Second}, nil)
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)
}

func TestPoolRecoversFromPanics(t *testing.T) {
	p := newTestPool(t, PoolConfig{MaxPoolSize: 1})

	require.NoError(t, p.Execute(func() { panic("boom") }))
	f, err := p.Submit(func() {})
	require.NoError(t, err)

	select {
	case <-f.Done():
	case <-time.After(waitFor):
		t.Fatal("pool stopped after a panicking task")
	}
}
