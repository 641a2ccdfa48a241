package httpclient

import (
	"context"
	"fmt"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/interceptor"
)

// Action is the closed set of HTTP client operations.
type Action string

const (
	ActionRefreshInterceptors Action = "refreshInterceptors"
	ActionEnableTraces        Action = "enableTraces"
	ActionDisableTraces       Action = "disableTraces"
	ActionActive              Action = "active"
	ActionInactive            Action = "inactive"
)

var Actions = []Action{ActionRefreshInterceptors, ActionEnableTraces, ActionDisableTraces, ActionActive, ActionInactive}

// ParseAction matches s against Actions.
func ParseAction(s string) (Action, error) {
	a, ok := enum.Parse(s, Actions...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, s)
	}
	return a, nil
}

// Dispatch runs a on t. Clients lacking the capability an action needs are
// skipped.
func Dispatch(ctx context.Context, name string, t Template, a Action) error {
	switch a {
	case ActionRefreshInterceptors:
		if i, ok := t.(Intercepted); ok {
			for _, entry := range i.Interceptors() {
				if err := interceptor.Dispatch(ctx, entry.Name, entry.Object, interceptor.ActionRefresh); err != nil {
					return err
				}
			}
		}
	case ActionEnableTraces:
		cfg := t.ClientConfig()
		traces := Traces{}
		if cfg.Traces != nil {
			traces = *cfg.Traces
		}
		traces.Active = true
		enable(&traces.Request.Active, &traces.Request.Headers, &traces.Request.Body)
		enable(&traces.Response.Active, &traces.Response.Headers, &traces.Response.Body)
		cfg.Traces = &traces
		if err := t.SetClientConfig(cfg); err != nil {
			return err
		}
		return errspkg.Lifecycle("initialize", name, t.Initialize())
	case ActionDisableTraces:
		cfg := t.ClientConfig()
		if cfg.Traces == nil {
			return nil
		}
		cfg.Traces = nil
		if err := t.SetClientConfig(cfg); err != nil {
			return err
		}
		return errspkg.Lifecycle("initialize", name, t.Initialize())
	case ActionActive, ActionInactive:
		if act, ok := t.(Activatable); ok {
			act.SetActive(a == ActionActive)
		}
	default:
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, a)
	}
	return nil
}

func enable(flags ...*bool) {
	for _, f := range flags {
		*f = true
	}
}
