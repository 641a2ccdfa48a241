package runtime

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/registry"
)

func TestOperationMetricsObserve(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := NewOperationMetrics(promReg, nil)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	hooks := m.Hooks()
	require.NoError(t, hooks.run(OperationContext{Endpoint: "executors", Operation: OpList}, func() error { return nil }))
	_ = hooks.run(OperationContext{Endpoint: "executors", Operation: OpAction}, func() error { return errors.New("x") })
	m.Observe("executors", OpList, time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("executors", OpList, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("executors", OpAction, "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.durationSeconds))
}

func TestOperationMetricsSharesExistingCollectors(t *testing.T) {
	promReg := prometheus.NewRegistry()
	first := NewOperationMetrics(promReg, nil)
	require.NoError(t, first.Register())
	second := NewOperationMetrics(promReg, nil)
	require.NoError(t, second.Register())

	second.Observe("listeners", OpGet, time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.operationsTotal.WithLabelValues("listeners", OpGet, "success")))
}

func TestOperationMetricsRejectsSecondExecutorCollector(t *testing.T) {
	promReg := prometheus.NewRegistry()
	require.NoError(t, NewOperationMetrics(promReg, registry.New()).Register())

	err := NewOperationMetrics(promReg, registry.New()).Register()
	var are prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &are)
	assert.Contains(t, err.Error(), "executor collector")
}

func TestExecutorCollector(t *testing.T) {
	reg := registry.New()
	pool, err := executor.NewPool(executor.PoolConfig{CorePoolSize: 2, MaxPoolSize: 4}, executor.Settings{}, nil)
	require.NoError(t, err)
	reg.MustRegister("pool", pool)
	reg.MustRegister("async", executor.NewAsync(0, executor.Settings{}))

	c := NewExecutorCollector(reg)
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	expected := `
# HELP actuator_executor_queue_size Tasks waiting in the queue
# TYPE actuator_executor_queue_size gauge
actuator_executor_queue_size{executor="pool",kind="pool"} 0
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "actuator_executor_queue_size"))
}
