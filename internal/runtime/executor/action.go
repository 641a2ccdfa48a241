package executor

import (
	"fmt"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Action is the closed set of executor operations.
type Action string

const (
	ActionPurge       Action = "purge"
	ActionClear       Action = "clear"
	ActionStart       Action = "start"
	ActionShutdown    Action = "shutdown"
	ActionShutdownNow Action = "shutdownNow"
	ActionRestart     Action = "restart"
)

// Actions lists every executor action.
var Actions = []Action{ActionPurge, ActionClear, ActionStart, ActionShutdown, ActionShutdownNow, ActionRestart}

// ParseAction matches s against Actions.
func ParseAction(s string) (Action, error) {
	a, ok := enum.Parse(s, Actions...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, s)
	}
	return a, nil
}

// Dispatch runs a on e. Executors without the capability an action needs are
// skipped, as are lifecycle actions that would not change the state.
func Dispatch(name string, e Executor, a Action) error {
	switch a {
	case ActionPurge:
		if p, ok := e.(Purger); ok {
			p.Purge()
		}
	case ActionClear:
		if c, ok := e.(QueueClearer); ok {
			c.ClearQueue()
		}
	case ActionStart:
		return start(name, e)
	case ActionShutdown:
		shutdown(e)
	case ActionShutdownNow:
		if l, ok := e.(Lifecycle); ok && canShutdown(l) {
			for _, task := range l.ShutdownNow() {
				if c, ok := task.(Canceler); ok {
					c.Cancel()
				}
			}
		}
	case ActionRestart:
		shutdown(e)
		return start(name, e)
	default:
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, a)
	}
	return nil
}

func shutdown(e Executor) {
	if l, ok := e.(Lifecycle); ok && canShutdown(l) {
		l.Shutdown()
	}
}

func start(name string, e Executor) error {
	l, ok := e.(Lifecycle)
	if !ok || canShutdown(l) {
		return nil
	}
	c, ok := e.(Configurable)
	if !ok {
		return nil
	}
	return errspkg.Lifecycle("initialize", name, c.Initialize())
}
