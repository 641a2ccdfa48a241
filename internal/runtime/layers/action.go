package layers

import (
	"context"
	"fmt"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Action is an operation of the configuration endpoint.
type Action string

const (
	ActionRefreshBeans Action = "refreshBeans"
	ActionReload       Action = "reload"
)

var Actions = []Action{ActionRefreshBeans, ActionReload}

// ParseAction matches s against Actions.
func ParseAction(s string) (Action, error) {
	a, ok := enum.Parse(s, Actions...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, s)
	}
	return a, nil
}

// Dispatch runs a on the store.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	switch a {
	case ActionRefreshBeans:
		return s.Refresh(ctx)
	case ActionReload:
		return s.Reload(ctx)
	default:
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, a)
	}
}
