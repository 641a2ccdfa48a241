package executor

import (
	"context"
	"sync/atomic"
)

const (
	futurePending int32 = iota
	futureRunning
	futureDone
	futureCancelled
)

// Future is the handle of a task submitted to a Pool.
type Future struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

func newFuture(fn func()) *Future {
	return &Future{fn: fn, done: make(chan struct{})}
}

// Run executes the task unless it already ran or was cancelled.
func (f *Future) Run() {
	if !f.state.CompareAndSwap(futurePending, futureRunning) {
		return
	}
	defer func() {
		f.state.Store(futureDone)
		close(f.done)
	}()
	f.fn()
}

// Cancel prevents a pending task from running. It reports false once the
// task has started.
func (f *Future) Cancel() bool {
	if !f.state.CompareAndSwap(futurePending, futureCancelled) {
		return false
	}
	close(f.done)
	return true
}

// Cancelled reports whether Cancel succeeded.
func (f *Future) Cancelled() bool { return f.state.Load() == futureCancelled }

// Done is closed when the task finishes or is cancelled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
