package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
)

// Operation names used in hooks, metrics and audit events.
const (
	OpList   = "list"
	OpGet    = "get"
	OpUpdate = "update"
	OpAction = "action"
	OpSearch = "search"
	OpPut    = "put"
	OpDelete = "delete"
)

// OperationContext describes one endpoint operation to hooks.
type OperationContext struct {
	// Endpoint is the endpoint name, for example "executors".
	Endpoint string
	// Operation is one of the Op* constants.
	Operation string
	// Target is the bean name, configuration key or layer. Empty for list
	// and fan-out operations.
	Target string
	// Action is set for action operations.
	Action string
	// RequestID is the X-Request-ID of the HTTP request.
	RequestID string
	Context   context.Context
	StartedAt time.Time
	// Duration is only set in OnDone and OnError.
	Duration time.Duration
}

// Write reports whether the operation changes state.
func (o OperationContext) Write() bool {
	switch o.Operation {
	case OpUpdate, OpAction, OpPut, OpDelete:
		return true
	}
	return false
}

// OperationHooks defines callbacks around endpoint operations. Nil hooks are
// not called.
type OperationHooks struct {
	OnStart func(op OperationContext)
	OnDone  func(op OperationContext)
	OnError func(op OperationContext, err error)
}

// Merge combines two OperationHooks. The hooks from other run after the
// hooks from h.
func (h OperationHooks) Merge(other OperationHooks) OperationHooks {
	return OperationHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(OperationContext)) func(OperationContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(op OperationContext) {
		a(op)
		b(op)
	}
}

func chainErrorHooks(a, b func(OperationContext, error)) func(OperationContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(op OperationContext, err error) {
		a(op, err)
		b(op, err)
	}
}

// run invokes fn between the hooks.
func (h OperationHooks) run(op OperationContext, fn func() error) error {
	op.StartedAt = time.Now()
	if h.OnStart != nil {
		h.OnStart(op)
	}
	err := fn()
	op.Duration = time.Since(op.StartedAt)
	if err != nil {
		if h.OnError != nil {
			h.OnError(op, err)
		}
		return err
	}
	if h.OnDone != nil {
		h.OnDone(op)
	}
	return nil
}

// LoggingHooks logs every write operation at info and every failure at error.
// Reads are logged at debug.
func LoggingHooks(logger loggingpkg.ServiceLogger) OperationHooks {
	fields := func(op OperationContext) loggingpkg.LogFields {
		f := loggingpkg.LogFields{
			"endpoint":   op.Endpoint,
			"operation":  op.Operation,
			"request_id": op.RequestID,
		}
		if op.Target != "" {
			f["target"] = op.Target
		}
		if op.Action != "" {
			f["action"] = op.Action
		}
		return f
	}
	return OperationHooks{
		OnDone: func(op OperationContext) {
			f := fields(op)
			f["duration_ms"] = op.Duration.Milliseconds()
			if op.Write() {
				logger.Info("Actuator operation completed", f)
				return
			}
			logger.Debug("Actuator operation completed", f)
		},
		OnError: func(op OperationContext, err error) {
			f := fields(op)
			f["duration_ms"] = op.Duration.Milliseconds()
			logger.Error("Actuator operation failed", err, f)
		},
	}
}

// AlertingHooks calls alert for every failed operation.
func AlertingHooks(alert func(op OperationContext, err error)) OperationHooks {
	return OperationHooks{OnError: alert}
}
