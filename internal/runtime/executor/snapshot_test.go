package executor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertPool(t *testing.T) {
	p, err := NewPool(PoolConfig{CorePoolSize: 1, MaxPoolSize: 3, KeepAlive: 90 * time.Second, QueueCapacity: 10},
		Settings{WorkerNamePrefix: "io-", AwaitTermination: 2 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.ShutdownNow() })

	snap := Convert("io", p)
	assert.Equal(t, KindPool, snap.Kind)
	assert.Equal(t, "io", snap.Name)
	assert.Equal(t, "*executor.Pool", snap.Type)
	require.NotNil(t, snap.Settings)
	assert.Equal(t, int64(2000), snap.Settings.AwaitTerminationMillis)
	require.NotNil(t, snap.Pool)
	assert.Equal(t, int64(90), snap.Pool.KeepAliveSeconds)
	assert.Equal(t, QueueSnapshot{Size: 0, Capacity: 10, Remaining: 10}, snap.Pool.Queue)
	assert.Nil(t, snap.Scheduling)
	assert.Nil(t, snap.Throttle)
}

func TestConvertSchedulerAndAsync(t *testing.T) {
	s := newTestScheduler(t, DefaultSchedulePolicy())
	snap := Convert("cron", s)
	assert.Equal(t, KindScheduler, snap.Kind)
	require.NotNil(t, snap.Scheduling)
	assert.True(t, snap.Scheduling.ExecuteExistingDelayedTasksAfterShutdown)
	assert.Equal(t, -1, snap.Pool.Queue.Remaining)

	a := NewAsync(4, Settings{})
	snap = Convert("async", a)
	assert.Equal(t, KindAsync, snap.Kind)
	assert.Nil(t, snap.Pool)
	require.NotNil(t, snap.Throttle)
	assert.Equal(t, ThrottleSnapshot{ConcurrencyLimit: 4, ThrottleActive: true}, *snap.Throttle)
}

func TestSnapshotJSONNames(t *testing.T) {
	s := newTestScheduler(t, DefaultSchedulePolicy())
	raw, err := json.Marshal(Convert("cron", s))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	scheduling, ok := doc["scheduling"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, scheduling, "removeOnCancelPolicy")
	pool, ok := doc["pool"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, pool, "keepAliveSeconds")
	assert.NotContains(t, doc, "throttle")
}
