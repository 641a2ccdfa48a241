package interceptor

import (
	"context"
	"fmt"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Action is the closed set of interceptor operations.
type Action string

const ActionRefresh Action = "refresh"

var Actions = []Action{ActionRefresh}

// ParseAction matches s against Actions.
func ParseAction(s string) (Action, error) {
	a, ok := enum.Parse(s, Actions...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, s)
	}
	return a, nil
}

// Dispatch runs a on i. Interceptors that cache no credentials ignore
// refresh.
func Dispatch(ctx context.Context, name string, i Interceptor, a Action) error {
	switch a {
	case ActionRefresh:
		return refresh(ctx, name, i)
	default:
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, a)
	}
}
