package executor

import (
	"time"

	"github.com/drblury/actuator/internal/runtime/params"
)

// Patch holds the executor fields a caller wants to change. Nil fields are
// left untouched.
type Patch struct {
	WorkerNamePrefix        *string
	WaitForTasksOnShutdown  *bool
	AwaitTermination        *time.Duration
	ConcurrencyLimit        *int
	CorePoolSize            *int
	MaxPoolSize             *int
	KeepAlive               *time.Duration
	QueueCapacity           *int
	AllowsCoreThreadTimeOut *bool

	RemoveOnCancelPolicy                             *bool
	ContinueExistingPeriodicTasksAfterShutdownPolicy *bool
	ExecuteExistingDelayedTasksAfterShutdownPolicy   *bool
}

// ParsePatch reads a patch from request parameters. Bare numbers are read as
// milliseconds for awaitTerminationMillis and seconds for keepAliveSeconds.
func ParsePatch(v params.Values) (Patch, error) {
	r := params.NewReader(v)
	p := Patch{
		WorkerNamePrefix:        r.String("workerNamePrefix"),
		WaitForTasksOnShutdown:  r.Bool("waitForTasksOnShutdown"),
		AwaitTermination:        r.Duration("awaitTerminationMillis", time.Millisecond),
		ConcurrencyLimit:        r.Int("concurrencyLimit"),
		CorePoolSize:            r.Int("corePoolSize"),
		MaxPoolSize:             r.Int("maxPoolSize"),
		KeepAlive:               r.Duration("keepAliveSeconds", time.Second),
		QueueCapacity:           r.Int("queueCapacity"),
		AllowsCoreThreadTimeOut: r.Bool("allowsCoreThreadTimeOut"),

		RemoveOnCancelPolicy:                             r.Bool("removeOnCancelPolicy"),
		ContinueExistingPeriodicTasksAfterShutdownPolicy: r.Bool("continueExistingPeriodicTasksAfterShutdownPolicy"),
		ExecuteExistingDelayedTasksAfterShutdownPolicy:   r.Bool("executeExistingDelayedTasksAfterShutdownPolicy"),
	}
	return p, r.Err()
}

func (p Patch) hasSettings() bool {
	return p.WorkerNamePrefix != nil || p.WaitForTasksOnShutdown != nil || p.AwaitTermination != nil
}

func (p Patch) hasPool() bool {
	return p.CorePoolSize != nil || p.MaxPoolSize != nil || p.KeepAlive != nil ||
		p.QueueCapacity != nil || p.AllowsCoreThreadTimeOut != nil
}

func (p Patch) hasPolicy() bool {
	return p.RemoveOnCancelPolicy != nil ||
		p.ContinueExistingPeriodicTasksAfterShutdownPolicy != nil ||
		p.ExecuteExistingDelayedTasksAfterShutdownPolicy != nil
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return !p.hasSettings() && !p.hasPool() && !p.hasPolicy() && p.ConcurrencyLimit == nil
}

// Apply writes the set fields through the capabilities e implements. Fields
// for capabilities e lacks are ignored. Executors are not re-initialized;
// pool changes apply to the running workers.
func Apply(e Executor, p Patch) error {
	if c, ok := e.(Configurable); ok && p.hasSettings() {
		s := c.Settings()
		set(&s.WorkerNamePrefix, p.WorkerNamePrefix)
		set(&s.WaitForTasksOnShutdown, p.WaitForTasksOnShutdown)
		set(&s.AwaitTermination, p.AwaitTermination)
		if err := c.SetSettings(s); err != nil {
			return err
		}
	}
	if t, ok := e.(Throttled); ok && p.ConcurrencyLimit != nil {
		t.SetConcurrencyLimit(*p.ConcurrencyLimit)
	}
	if tp, ok := e.(ThreadPool); ok && p.hasPool() {
		cfg := tp.PoolConfig()
		set(&cfg.CorePoolSize, p.CorePoolSize)
		set(&cfg.MaxPoolSize, p.MaxPoolSize)
		set(&cfg.KeepAlive, p.KeepAlive)
		set(&cfg.QueueCapacity, p.QueueCapacity)
		set(&cfg.AllowCoreThreadTimeOut, p.AllowsCoreThreadTimeOut)
		if err := tp.SetPoolConfig(cfg); err != nil {
			return err
		}
	}
	if s, ok := e.(Scheduling); ok && p.hasPolicy() {
		policy := s.SchedulePolicy()
		set(&policy.RemoveOnCancel, p.RemoveOnCancelPolicy)
		set(&policy.ContinueExistingPeriodicTasksAfterShutdown, p.ContinueExistingPeriodicTasksAfterShutdownPolicy)
		set(&policy.ExecuteExistingDelayedTasksAfterShutdown, p.ExecuteExistingDelayedTasksAfterShutdownPolicy)
		s.SetSchedulePolicy(policy)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
