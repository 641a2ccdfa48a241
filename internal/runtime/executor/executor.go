// Package executor defines the capabilities through which the actuator
// inspects and controls task executors, and ships three managed adapters:
// Pool (an ants worker pool with a task queue), Scheduler (delayed and
// periodic tasks on a Pool) and Async (one goroutine per task, optionally
// throttled).
package executor

import (
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Kind is the closed set of executor variants.
type Kind string

const (
	KindPool      Kind = "pool"
	KindScheduler Kind = "scheduler"
	KindAsync     Kind = "async"
)

// Executor is implemented by every managed executor.
type Executor interface {
	ExecutorKind() Kind
}

// Settings are the options shared by every executor variant.
type Settings struct {
	WorkerNamePrefix       string
	WaitForTasksOnShutdown bool
	// AwaitTermination bounds how long Shutdown blocks when
	// WaitForTasksOnShutdown is set.
	AwaitTermination time.Duration
}

// Validate rejects negative durations.
func (s Settings) Validate() error {
	if s.AwaitTermination < 0 {
		return fmt.Errorf("%w: awaitTermination cannot be negative", errspkg.ErrInvalidParameter)
	}
	return nil
}

// Configurable executors expose their settings and can be (re)initialized.
type Configurable interface {
	Settings() Settings
	SetSettings(Settings) error
	Initialize() error
}

// PoolConfig sizes a worker pool.
type PoolConfig struct {
	CorePoolSize int
	MaxPoolSize  int
	// KeepAlive is how long an idle worker lives before it is reclaimed.
	KeepAlive time.Duration
	// QueueCapacity bounds the number of waiting tasks. Zero is unbounded.
	QueueCapacity          int
	AllowCoreThreadTimeOut bool
}

// Validate checks the pool bounds.
func (c PoolConfig) Validate() error {
	var errs []error
	if c.MaxPoolSize < 1 {
		errs = append(errs, errors.New("maxPoolSize must be at least 1"))
	}
	if c.CorePoolSize < 0 {
		errs = append(errs, errors.New("corePoolSize cannot be negative"))
	}
	if c.CorePoolSize > c.MaxPoolSize {
		errs = append(errs, fmt.Errorf("corePoolSize %d exceeds maxPoolSize %d", c.CorePoolSize, c.MaxPoolSize))
	}
	if c.KeepAlive < 0 {
		errs = append(errs, errors.New("keepAlive cannot be negative"))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, errors.New("queueCapacity cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errspkg.ErrInvalidParameter, errors.Join(errs...))
	}
	return nil
}

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	ActiveCount        int
	PoolSize           int
	LargestPoolSize    int
	TaskCount          int64
	CompletedTaskCount int64
	QueueSize          int
	// QueueRemaining is -1 for unbounded queues.
	QueueRemaining int
}

// ThreadPool executors run tasks on a bounded set of workers.
type ThreadPool interface {
	PoolConfig() PoolConfig
	SetPoolConfig(PoolConfig) error
	PoolStats() PoolStats
}

// SchedulePolicy controls what happens to scheduled tasks on cancel and
// shutdown.
type SchedulePolicy struct {
	RemoveOnCancel                             bool `json:"removeOnCancelPolicy"`
	ContinueExistingPeriodicTasksAfterShutdown bool `json:"continueExistingPeriodicTasksAfterShutdownPolicy"`
	ExecuteExistingDelayedTasksAfterShutdown   bool `json:"executeExistingDelayedTasksAfterShutdownPolicy"`
}

// DefaultSchedulePolicy keeps delayed tasks and drops periodic ones on
// shutdown.
func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{ExecuteExistingDelayedTasksAfterShutdown: true}
}

// Scheduling executors run delayed and periodic tasks.
type Scheduling interface {
	SchedulePolicy() SchedulePolicy
	SetSchedulePolicy(SchedulePolicy)
}

// Throttled executors cap concurrent tasks. A limit of zero or less disables
// throttling.
type Throttled interface {
	ConcurrencyLimit() int
	SetConcurrencyLimit(int)
	IsThrottleActive() bool
}

// Task is a unit of work that was queued but not started.
type Task interface {
	Run()
}

// Canceler is implemented by task handles that can be cancelled.
type Canceler interface {
	Cancel() bool
}

// Lifecycle executors can be shut down and report their termination state.
type Lifecycle interface {
	Shutdown()
	// ShutdownNow stops accepting work and returns the tasks that never
	// started.
	ShutdownNow() []Task
	IsShutdown() bool
	IsTerminated() bool
	IsTerminating() bool
}

// Purger executors can drop cancelled tasks from their queue.
type Purger interface {
	Purge()
}

// QueueClearer executors can drop every queued task.
type QueueClearer interface {
	ClearQueue()
}

func canShutdown(l Lifecycle) bool {
	return !l.IsShutdown() && !l.IsTerminated() && !l.IsTerminating()
}
