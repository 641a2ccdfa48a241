package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Async starts one goroutine per task. With a positive concurrency limit,
// Execute blocks until a slot is free.
type Async struct {
	mu       sync.Mutex
	settings Settings
	limit    int
	sem      *semaphore.Weighted

	active    atomic.Int64
	submitted atomic.Int64
}

// NewAsync creates an async executor. A limit of zero or less disables
// throttling.
func NewAsync(limit int, settings Settings) *Async {
	a := &Async{settings: settings}
	a.SetConcurrencyLimit(limit)
	return a
}

func (a *Async) ExecutorKind() Kind { return KindAsync }

// Execute runs fn on a new goroutine.
func (a *Async) Execute(fn func()) error {
	return a.ExecuteContext(context.Background(), fn)
}

// ExecuteContext waits for a throttle slot until ctx ends.
func (a *Async) ExecuteContext(ctx context.Context, fn func()) error {
	a.mu.Lock()
	sem := a.sem
	a.mu.Unlock()

	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %w", errspkg.ErrRejected, err)
		}
	}
	a.submitted.Add(1)
	a.active.Add(1)
	go func() {
		defer a.active.Add(-1)
		if sem != nil {
			defer sem.Release(1)
		}
		fn()
	}()
	return nil
}

// ConcurrencyLimit returns the current limit.
func (a *Async) ConcurrencyLimit() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit
}

// SetConcurrencyLimit swaps in a new throttle. Running tasks release their
// slot on the throttle they acquired.
func (a *Async) SetConcurrencyLimit(limit int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit = limit
	if limit > 0 {
		a.sem = semaphore.NewWeighted(int64(limit))
	} else {
		a.sem = nil
	}
}

// IsThrottleActive reports whether a positive limit is set.
func (a *Async) IsThrottleActive() bool { return a.ConcurrencyLimit() > 0 }

// ActiveCount returns the number of running tasks.
func (a *Async) ActiveCount() int { return int(a.active.Load()) }

// TaskCount returns the number of tasks started.
func (a *Async) TaskCount() int64 { return a.submitted.Load() }

func (a *Async) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *Async) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return nil
}

// Initialize has nothing to rebuild.
func (a *Async) Initialize() error { return nil }
