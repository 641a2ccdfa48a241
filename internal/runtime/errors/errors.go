package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrNotFound          = sterrors.New("actuator: object not found")
	ErrNameRequired      = sterrors.New("actuator: object name is required")
	ErrDuplicateName     = sterrors.New("actuator: object name already registered")
	ErrUnknownAction     = sterrors.New("actuator: unknown action")
	ErrUnknownLayer      = sterrors.New("actuator: unknown configuration layer")
	ErrUnknownOperator   = sterrors.New("actuator: unknown search operator")
	ErrInvalidParameter  = sterrors.New("actuator: invalid parameter")
	ErrRejected          = sterrors.New("actuator: task rejected")
	ErrLifecycle         = sterrors.New("actuator: lifecycle callback failed")
	ErrClientInactive    = sterrors.New("actuator: http client is inactive")
	ErrConfigRequired    = sterrors.New("actuator: config is required")
	ErrPublisherRequired = sterrors.New("actuator: publisher is required")
	ErrTopicRequired     = sterrors.New("actuator: topic is required")
	ErrSubscriberMissing = sterrors.New("actuator: listener has no subscriber")
)

// NotFoundError reports a lookup of a name that is not registered for the
// requested capability.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("actuator: %q not found", e.Name)
	}
	return fmt.Sprintf("actuator: %s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError for the given capability kind and name.
func NotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// LifecycleError wraps a failure raised by an object's initialization, start,
// stop or refresh callback.
type LifecycleError struct {
	Op   string
	Name string
	Err  error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("actuator: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

func (e *LifecycleError) Is(target error) bool { return target == ErrLifecycle }

// Lifecycle wraps err in a LifecycleError. A nil err returns nil.
func Lifecycle(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &LifecycleError{Op: op, Name: name, Err: err}
}
