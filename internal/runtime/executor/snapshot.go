package executor

import (
	"fmt"
	"time"
)

// Snapshot is the read-only view of an executor. Sections are present only
// when the executor has the matching capability.
type Snapshot struct {
	Kind       Kind              `json:"kind"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Settings   *SettingsSnapshot `json:"settings,omitempty"`
	Pool       *PoolSnapshot     `json:"pool,omitempty"`
	Scheduling *SchedulePolicy   `json:"scheduling,omitempty"`
	Throttle   *ThrottleSnapshot `json:"throttle,omitempty"`
}

type SettingsSnapshot struct {
	WorkerNamePrefix       string `json:"workerNamePrefix"`
	WaitForTasksOnShutdown bool   `json:"waitForTasksOnShutdown"`
	AwaitTerminationMillis int64  `json:"awaitTerminationMillis"`
}

type PoolSnapshot struct {
	ActiveCount             int           `json:"activeCount"`
	CorePoolSize            int           `json:"corePoolSize"`
	MaxPoolSize             int           `json:"maxPoolSize"`
	PoolSize                int           `json:"poolSize"`
	LargestPoolSize         int           `json:"largestPoolSize"`
	AllowsCoreThreadTimeOut bool          `json:"allowsCoreThreadTimeOut"`
	Shutdown                bool          `json:"shutdown"`
	Terminated              bool          `json:"terminated"`
	Terminating             bool          `json:"terminating"`
	TaskCount               int64         `json:"taskCount"`
	CompletedTaskCount      int64         `json:"completedTaskCount"`
	KeepAliveSeconds        int64         `json:"keepAliveSeconds"`
	Queue                   QueueSnapshot `json:"queue"`
}

type QueueSnapshot struct {
	Size      int `json:"size"`
	Capacity  int `json:"capacity"`
	Remaining int `json:"remaining"`
}

type ThrottleSnapshot struct {
	ConcurrencyLimit int  `json:"concurrencyLimit"`
	ThrottleActive   bool `json:"throttleActive"`
}

// Convert builds the snapshot of e.
func Convert(name string, e Executor) Snapshot {
	snap := Snapshot{
		Kind: e.ExecutorKind(),
		Name: name,
		Type: fmt.Sprintf("%T", e),
	}
	if c, ok := e.(Configurable); ok {
		s := c.Settings()
		snap.Settings = &SettingsSnapshot{
			WorkerNamePrefix:       s.WorkerNamePrefix,
			WaitForTasksOnShutdown: s.WaitForTasksOnShutdown,
			AwaitTerminationMillis: s.AwaitTermination.Milliseconds(),
		}
	}
	if tp, ok := e.(ThreadPool); ok {
		cfg := tp.PoolConfig()
		stats := tp.PoolStats()
		pool := &PoolSnapshot{
			ActiveCount:             stats.ActiveCount,
			CorePoolSize:            cfg.CorePoolSize,
			MaxPoolSize:             cfg.MaxPoolSize,
			PoolSize:                stats.PoolSize,
			LargestPoolSize:         stats.LargestPoolSize,
			AllowsCoreThreadTimeOut: cfg.AllowCoreThreadTimeOut,
			TaskCount:               stats.TaskCount,
			CompletedTaskCount:      stats.CompletedTaskCount,
			KeepAliveSeconds:        int64(cfg.KeepAlive / time.Second),
			Queue: QueueSnapshot{
				Size:      stats.QueueSize,
				Capacity:  cfg.QueueCapacity,
				Remaining: stats.QueueRemaining,
			},
		}
		if l, ok := e.(Lifecycle); ok {
			pool.Shutdown = l.IsShutdown()
			pool.Terminated = l.IsTerminated()
			pool.Terminating = l.IsTerminating()
		}
		snap.Pool = pool
	}
	if s, ok := e.(Scheduling); ok {
		policy := s.SchedulePolicy()
		snap.Scheduling = &policy
	}
	if t, ok := e.(Throttled); ok {
		snap.Throttle = &ThrottleSnapshot{
			ConcurrencyLimit: t.ConcurrencyLimit(),
			ThrottleActive:   t.IsThrottleActive(),
		}
	}
	return snap
}
