package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/registry"
)

const metricsNamespace = "actuator"

// OperationMetrics records every endpoint operation in Prometheus.
type OperationMetrics struct {
	mu sync.Mutex

	operationsTotal *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	executors       *ExecutorCollector

	registerer prometheus.Registerer
	registered bool
}

// NewOperationMetrics creates the collectors. reg may be nil when the
// executor gauges are not wanted.
func NewOperationMetrics(registerer prometheus.Registerer, reg *registry.Registry) *OperationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &OperationMetrics{
		registerer: registerer,
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Total number of actuator endpoint operations",
		}, []string{"endpoint", "operation", "outcome"}),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of actuator endpoint operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "operation"}),
	}
	if reg != nil {
		m.executors = NewExecutorCollector(reg)
	}
	return m
}

// Register registers the collectors. Safe to call multiple times. Operation
// counters already registered by another instance are shared. The executor
// collector is bound to one registry, so a second one on the same
// Registerer is an error.
func (m *OperationMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	if err := m.registerer.Register(m.operationsTotal); err != nil {
		existing, err := existingCollector[*prometheus.CounterVec](err)
		if err != nil {
			return err
		}
		m.operationsTotal = existing
	}
	if err := m.registerer.Register(m.durationSeconds); err != nil {
		existing, err := existingCollector[*prometheus.HistogramVec](err)
		if err != nil {
			return err
		}
		m.durationSeconds = existing
	}
	if m.executors != nil {
		if err := m.registerer.Register(m.executors); err != nil {
			return fmt.Errorf("executor collector: %w", err)
		}
	}

	m.registered = true
	return nil
}

func existingCollector[C prometheus.Collector](err error) (C, error) {
	var zero C
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	c, ok := are.ExistingCollector.(C)
	if !ok {
		return zero, err
	}
	return c, nil
}

// Observe records one finished operation.
func (m *OperationMetrics) Observe(endpoint, operation string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operationsTotal.WithLabelValues(endpoint, operation, outcome).Inc()
	m.durationSeconds.WithLabelValues(endpoint, operation).Observe(d.Seconds())
}

// Hooks adapts the metrics to the operation hooks.
func (m *OperationMetrics) Hooks() OperationHooks {
	return OperationHooks{
		OnDone: func(op OperationContext) {
			m.Observe(op.Endpoint, op.Operation, op.Duration, nil)
		},
		OnError: func(op OperationContext, err error) {
			m.Observe(op.Endpoint, op.Operation, op.Duration, err)
		},
	}
}

// ExecutorCollector exports the pool gauges of every registered ThreadPool
// executor at scrape time.
type ExecutorCollector struct {
	reg *registry.Registry

	active    *prometheus.Desc
	poolSize  *prometheus.Desc
	largest   *prometheus.Desc
	queueSize *prometheus.Desc
	tasks     *prometheus.Desc
	completed *prometheus.Desc
}

func NewExecutorCollector(reg *registry.Registry) *ExecutorCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "executor", name),
			help, []string{"executor", "kind"}, nil)
	}
	return &ExecutorCollector{
		reg:       reg,
		active:    desc("active_count", "Tasks currently running"),
		poolSize:  desc("pool_size", "Current number of workers"),
		largest:   desc("largest_pool_size", "Largest number of workers seen"),
		queueSize: desc("queue_size", "Tasks waiting in the queue"),
		tasks:     desc("tasks_total", "Tasks ever submitted"),
		completed: desc("completed_tasks_total", "Tasks completed"),
	}
}

func (c *ExecutorCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.active, c.poolSize, c.largest, c.queueSize, c.tasks, c.completed} {
		ch <- d
	}
}

func (c *ExecutorCollector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range registry.All[executor.Executor](c.reg) {
		pool, ok := e.Object.(executor.ThreadPool)
		if !ok {
			continue
		}
		stats := pool.PoolStats()
		labels := []string{e.Name, string(e.Object.ExecutorKind())}
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.ActiveCount), labels...)
		ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(stats.PoolSize), labels...)
		ch <- prometheus.MustNewConstMetric(c.largest, prometheus.GaugeValue, float64(stats.LargestPoolSize), labels...)
		ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(stats.QueueSize), labels...)
		ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.CounterValue, float64(stats.TaskCount), labels...)
		ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(stats.CompletedTaskCount), labels...)
	}
}
