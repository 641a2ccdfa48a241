package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/logging"
)

// Scheduler runs delayed and periodic tasks on a Pool. Tasks wait on timers
// until due and are then queued on the pool.
type Scheduler struct {
	pool *Pool

	mu       sync.Mutex
	policy   SchedulePolicy
	tasks    map[*ScheduledFuture]struct{}
	shutdown bool
}

// NewScheduler creates a scheduler backed by a new pool.
func NewScheduler(cfg PoolConfig, settings Settings, policy SchedulePolicy, logger logging.ServiceLogger) (*Scheduler, error) {
	pool, err := NewPool(cfg, settings, logger)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		pool:   pool,
		policy: policy,
		tasks:  make(map[*ScheduledFuture]struct{}),
	}, nil
}

func (s *Scheduler) ExecutorKind() Kind { return KindScheduler }

// ScheduledFuture is the handle of a delayed or periodic task.
type ScheduledFuture struct {
	s      *Scheduler
	fn     func()
	period time.Duration
	timer  *time.Timer

	cancelled atomic.Bool
	runs      atomic.Int64
	done      chan struct{}
	doneOnce  sync.Once
}

// Schedule runs fn once after delay.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) (*ScheduledFuture, error) {
	return s.schedule(fn, delay, 0)
}

// ScheduleWithFixedDelay runs fn after initialDelay and then again delay
// after each run completes, until cancelled.
func (s *Scheduler) ScheduleWithFixedDelay(fn func(), initialDelay, delay time.Duration) (*ScheduledFuture, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("%w: delay must be positive", errspkg.ErrInvalidParameter)
	}
	return s.schedule(fn, initialDelay, delay)
}

// Execute runs fn as soon as a worker is free.
func (s *Scheduler) Execute(fn func()) error {
	_, err := s.Schedule(fn, 0)
	return err
}

func (s *Scheduler) schedule(fn func(), delay, period time.Duration) (*ScheduledFuture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, fmt.Errorf("%w: scheduler is shut down", errspkg.ErrRejected)
	}
	f := &ScheduledFuture{s: s, fn: fn, period: period, done: make(chan struct{})}
	s.tasks[f] = struct{}{}
	f.timer = time.AfterFunc(delay, f.fire)
	return f, nil
}

func (f *ScheduledFuture) fire() {
	if f.cancelled.Load() {
		return
	}
	if err := f.s.pool.Execute(f.Run); err != nil {
		f.finish()
		f.s.remove(f)
	}
}

// Run executes the task once and reschedules it when periodic.
func (f *ScheduledFuture) Run() {
	if f.cancelled.Load() {
		return
	}
	f.fn()
	f.runs.Add(1)
	if f.period > 0 && f.s.keepPeriodic() && !f.cancelled.Load() {
		f.timer.Reset(f.period)
		return
	}
	f.finish()
	f.s.remove(f)
}

// Cancel stops future runs. It reports false if already cancelled.
func (f *ScheduledFuture) Cancel() bool {
	if !f.cancelled.CompareAndSwap(false, true) {
		return false
	}
	f.timer.Stop()
	f.finish()
	s := f.s
	s.mu.Lock()
	remove := s.policy.RemoveOnCancel || s.shutdown
	s.mu.Unlock()
	if remove {
		s.remove(f)
	}
	return true
}

// Cancelled reports whether the task was cancelled.
func (f *ScheduledFuture) Cancelled() bool { return f.cancelled.Load() }

// Periodic reports whether the task repeats.
func (f *ScheduledFuture) Periodic() bool { return f.period > 0 }

// Runs counts completed executions.
func (f *ScheduledFuture) Runs() int64 { return f.runs.Load() }

// Done is closed when a one-shot task finishes or any task is cancelled.
func (f *ScheduledFuture) Done() <-chan struct{} { return f.done }

func (f *ScheduledFuture) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (s *Scheduler) keepPeriodic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shutdown || s.policy.ContinueExistingPeriodicTasksAfterShutdown
}

// remove forgets f and shuts the pool down once a shut down scheduler has no
// pending tasks left.
func (s *Scheduler) remove(f *ScheduledFuture) {
	s.mu.Lock()
	_, present := s.tasks[f]
	delete(s.tasks, f)
	last := present && s.shutdown && len(s.tasks) == 0
	s.mu.Unlock()
	if last {
		go s.pool.Shutdown()
	}
}

func (s *Scheduler) SchedulePolicy() SchedulePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Scheduler) SetSchedulePolicy(policy SchedulePolicy) {
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
}

func (s *Scheduler) Settings() Settings            { return s.pool.Settings() }
func (s *Scheduler) SetSettings(st Settings) error { return s.pool.SetSettings(st) }
func (s *Scheduler) PoolConfig() PoolConfig        { return s.pool.PoolConfig() }

func (s *Scheduler) SetPoolConfig(cfg PoolConfig) error {
	return s.pool.SetPoolConfig(cfg)
}

// PoolStats counts pending scheduled tasks as queued. The schedule queue is
// unbounded.
func (s *Scheduler) PoolStats() PoolStats {
	stats := s.pool.PoolStats()
	s.mu.Lock()
	stats.QueueSize += len(s.tasks)
	s.mu.Unlock()
	stats.QueueRemaining = -1
	return stats
}

// Initialize restarts the underlying pool and accepts new tasks again.
func (s *Scheduler) Initialize() error {
	s.mu.Lock()
	s.shutdown = false
	s.mu.Unlock()
	return s.pool.Initialize()
}

// Purge drops cancelled tasks that are still waiting.
func (s *Scheduler) Purge() {
	s.mu.Lock()
	for f := range s.tasks {
		if f.cancelled.Load() {
			delete(s.tasks, f)
		}
	}
	last := s.shutdown && len(s.tasks) == 0
	s.mu.Unlock()
	s.pool.Purge()
	if last {
		go s.pool.Shutdown()
	}
}

// ClearQueue cancels every waiting task.
func (s *Scheduler) ClearQueue() {
	s.mu.Lock()
	pending := make([]*ScheduledFuture, 0, len(s.tasks))
	for f := range s.tasks {
		pending = append(pending, f)
	}
	clear(s.tasks)
	last := s.shutdown
	s.mu.Unlock()
	for _, f := range pending {
		f.cancelled.Store(true)
		f.timer.Stop()
		f.finish()
	}
	s.pool.ClearQueue()
	if last {
		go s.pool.Shutdown()
	}
}

// Shutdown stops accepting tasks and applies the shutdown policies to the
// waiting ones. The pool shuts down once no kept task remains.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	var dropped []*ScheduledFuture
	for f := range s.tasks {
		keep := !f.cancelled.Load()
		if f.Periodic() {
			keep = keep && s.policy.ContinueExistingPeriodicTasksAfterShutdown
		} else {
			keep = keep && s.policy.ExecuteExistingDelayedTasksAfterShutdown
		}
		if !keep {
			dropped = append(dropped, f)
			delete(s.tasks, f)
		}
	}
	empty := len(s.tasks) == 0
	s.mu.Unlock()

	for _, f := range dropped {
		f.cancelled.Store(true)
		f.timer.Stop()
		f.finish()
	}
	if empty {
		s.pool.Shutdown()
	}
}

// ShutdownNow returns every waiting task without running it.
func (s *Scheduler) ShutdownNow() []Task {
	s.mu.Lock()
	if s.shutdown && s.pool.IsShutdown() {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	var tasks []Task
	for f := range s.tasks {
		f.timer.Stop()
		if !f.cancelled.Load() {
			tasks = append(tasks, f)
		}
	}
	clear(s.tasks)
	s.mu.Unlock()
	return append(tasks, s.pool.ShutdownNow()...)
}

func (s *Scheduler) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Scheduler) IsTerminated() bool { return s.pool.IsTerminated() }

func (s *Scheduler) IsTerminating() bool {
	return s.IsShutdown() && !s.pool.IsTerminated()
}

// Pool returns the pool running the due tasks.
func (s *Scheduler) Pool() *Pool { return s.pool }
