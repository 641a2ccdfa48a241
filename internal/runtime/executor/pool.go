package executor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/logging"
)

// AntsFactory allows overriding the worker pool creation for testing.
var AntsFactory = func(size int, opts ...ants.Option) (*ants.Pool, error) {
	return ants.NewPool(size, opts...)
}

// Pool queues submitted tasks and feeds them to an ants worker pool of at
// most MaxPoolSize workers.
type Pool struct {
	logger logging.ServiceLogger

	mu       sync.Mutex
	settings Settings
	cfg      PoolConfig
	gen      *generation
	queue    []*Future

	active    atomic.Int64
	largest   atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
}

// generation is one initialize-to-terminate cycle of the pool.
type generation struct {
	workers    *ants.Pool
	wake       chan struct{}
	stop       chan struct{}
	dispatched chan struct{}
	terminated chan struct{}
	shutdown   atomic.Bool
	running    sync.WaitGroup
}

// NewPool creates and initializes a pool.
func NewPool(cfg PoolConfig, settings Settings, logger logging.ServiceLogger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopServiceLogger()
	}
	p := &Pool{logger: logger, settings: settings, cfg: cfg}
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) ExecutorKind() Kind { return KindPool }

// Settings returns the current settings.
func (p *Pool) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the settings. They apply to the next shutdown.
func (p *Pool) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	return nil
}

// Initialize starts a fresh worker pool. A running generation is shut down
// gracefully; queued tasks carry over.
func (p *Pool) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	workers, err := p.newWorkers(p.cfg)
	if err != nil {
		return err
	}
	old := p.gen
	g := &generation{
		workers:    workers,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		dispatched: make(chan struct{}),
		terminated: make(chan struct{}),
	}
	p.gen = g
	if old != nil && old.shutdown.CompareAndSwap(false, true) {
		close(old.stop)
		go p.terminate(old)
	}
	go p.dispatch(g)
	if len(p.queue) > 0 {
		g.signal()
	}
	p.logger.Debug("Executor pool initialized", logging.LogFields{
		"worker_prefix": p.settings.WorkerNamePrefix,
		"max_pool_size": p.cfg.MaxPoolSize,
	})
	return nil
}

func (p *Pool) newWorkers(cfg PoolConfig) (*ants.Pool, error) {
	opts := []ants.Option{ants.WithPanicHandler(p.onPanic)}
	if cfg.KeepAlive > 0 {
		opts = append(opts, ants.WithExpiryDuration(cfg.KeepAlive))
	}
	if !cfg.AllowCoreThreadTimeOut {
		opts = append(opts, ants.WithDisablePurge(true))
	}
	return AntsFactory(cfg.MaxPoolSize, opts...)
}

func (p *Pool) onPanic(v any) {
	p.logger.Error("Executor task panicked", fmt.Errorf("%v", v), logging.LogFields{
		"worker_prefix": p.Settings().WorkerNamePrefix,
	})
}

// PoolConfig returns the current sizing.
func (p *Pool) PoolConfig() PoolConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetPoolConfig applies cfg to the running pool. Size changes tune the
// workers in place; keep-alive changes swap in a new worker pool while
// running tasks finish on the old one.
func (p *Pool) SetPoolConfig(cfg PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.cfg
	p.cfg = cfg
	g := p.gen
	if g == nil || g.shutdown.Load() {
		return nil
	}
	if old.KeepAlive != cfg.KeepAlive || old.AllowCoreThreadTimeOut != cfg.AllowCoreThreadTimeOut {
		workers, err := p.newWorkers(cfg)
		if err != nil {
			p.cfg = old
			return err
		}
		prev := g.workers
		g.workers = workers
		prev.Release()
		return nil
	}
	if old.MaxPoolSize != cfg.MaxPoolSize {
		g.workers.Tune(cfg.MaxPoolSize)
	}
	return nil
}

// PoolStats reports current activity.
func (p *Pool) PoolStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := PoolStats{
		ActiveCount:        int(p.active.Load()),
		LargestPoolSize:    int(p.largest.Load()),
		TaskCount:          p.submitted.Load(),
		CompletedTaskCount: p.completed.Load(),
		QueueSize:          len(p.queue),
		QueueRemaining:     -1,
	}
	if p.gen != nil && !p.gen.isTerminated() {
		stats.PoolSize = p.gen.workers.Running()
	}
	if p.cfg.QueueCapacity > 0 {
		stats.QueueRemaining = max(p.cfg.QueueCapacity-len(p.queue), 0)
	}
	return stats
}

// Submit queues fn and returns its handle.
func (p *Pool) Submit(fn func()) (*Future, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.gen
	if g == nil || g.shutdown.Load() {
		return nil, fmt.Errorf("%w: executor is shut down", errspkg.ErrRejected)
	}
	if c := p.cfg.QueueCapacity; c > 0 && len(p.queue) >= c {
		return nil, fmt.Errorf("%w: queue capacity %d reached", errspkg.ErrRejected, c)
	}
	f := newFuture(fn)
	p.queue = append(p.queue, f)
	p.submitted.Add(1)
	g.signal()
	return f, nil
}

// Execute queues fn without keeping its handle.
func (p *Pool) Execute(fn func()) error {
	_, err := p.Submit(fn)
	return err
}

// Purge drops cancelled tasks from the queue.
func (p *Pool) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.queue[:0]
	for _, f := range p.queue {
		if !f.Cancelled() {
			kept = append(kept, f)
		}
	}
	clear(p.queue[len(kept):])
	p.queue = kept
}

// ClearQueue cancels and drops every queued task.
func (p *Pool) ClearQueue() {
	p.mu.Lock()
	drained := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, f := range drained {
		f.Cancel()
	}
}

// Shutdown stops accepting tasks. Queued tasks still run. When
// WaitForTasksOnShutdown is set, Shutdown blocks up to AwaitTermination for
// them to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	g := p.gen
	if g == nil || !g.shutdown.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return
	}
	close(g.stop)
	wait, timeout := p.settings.WaitForTasksOnShutdown, p.settings.AwaitTermination
	p.mu.Unlock()

	go p.terminate(g)
	if wait && timeout > 0 {
		select {
		case <-g.terminated:
		case <-time.After(timeout):
		}
	}
}

// ShutdownNow stops accepting tasks and returns the queued ones without
// running them.
func (p *Pool) ShutdownNow() []Task {
	p.mu.Lock()
	g := p.gen
	if g == nil || !g.shutdown.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	close(g.stop)
	drained := p.queue
	p.queue = nil
	p.mu.Unlock()

	go p.terminate(g)
	tasks := make([]Task, 0, len(drained))
	for _, f := range drained {
		if !f.Cancelled() {
			tasks = append(tasks, f)
		}
	}
	return tasks
}

func (p *Pool) IsShutdown() bool {
	g := p.current()
	return g == nil || g.shutdown.Load()
}

func (p *Pool) IsTerminated() bool {
	g := p.current()
	return g == nil || g.isTerminated()
}

func (p *Pool) IsTerminating() bool {
	g := p.current()
	return g != nil && g.shutdown.Load() && !g.isTerminated()
}

// AwaitTermination blocks until the current generation terminates or the
// timeout passes, and reports whether it terminated.
func (p *Pool) AwaitTermination(timeout time.Duration) bool {
	g := p.current()
	if g == nil {
		return true
	}
	select {
	case <-g.terminated:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *Pool) current() *generation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Pool) dispatch(g *generation) {
	defer close(g.dispatched)
	for {
		f := p.next(g)
		if f == nil {
			return
		}
		p.run(g, f)
	}
}

// next pops the next live task. It returns nil once g is shut down with an
// empty queue or has been replaced by a newer generation.
func (p *Pool) next(g *generation) *Future {
	for {
		p.mu.Lock()
		if p.gen != g {
			p.mu.Unlock()
			return nil
		}
		for len(p.queue) > 0 {
			f := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			if !f.Cancelled() {
				p.mu.Unlock()
				return f
			}
		}
		stopping := g.shutdown.Load()
		p.mu.Unlock()
		if stopping {
			return nil
		}
		select {
		case <-g.wake:
		case <-g.stop:
		}
	}
}

func (p *Pool) run(g *generation, f *Future) {
	g.running.Add(1)
	p.started()
	task := func() {
		defer g.running.Done()
		defer p.finished()
		f.Run()
	}
	for {
		p.mu.Lock()
		workers := g.workers
		p.mu.Unlock()

		err := workers.Submit(task)
		if err == nil {
			return
		}
		p.mu.Lock()
		swapped := g.workers != workers
		p.mu.Unlock()
		if swapped && errors.Is(err, ants.ErrPoolClosed) {
			continue
		}
		g.running.Done()
		p.active.Add(-1)
		f.Cancel()
		p.logger.Error("Executor failed to run task", err, logging.LogFields{
			"worker_prefix": p.Settings().WorkerNamePrefix,
		})
		return
	}
}

func (p *Pool) started() {
	n := p.active.Add(1)
	for {
		cur := p.largest.Load()
		if n <= cur || p.largest.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (p *Pool) finished() {
	p.active.Add(-1)
	p.completed.Add(1)
}

func (p *Pool) terminate(g *generation) {
	<-g.dispatched
	g.running.Wait()
	p.mu.Lock()
	workers := g.workers
	p.mu.Unlock()
	workers.Release()
	close(g.terminated)
}

func (g *generation) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *generation) isTerminated() bool {
	select {
	case <-g.terminated:
		return true
	default:
		return false
	}
}
