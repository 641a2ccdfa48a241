package listener

import (
	"context"
	"fmt"
	"sort"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/registry"
)

// Action is the closed set of listener operations.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

var Actions = []Action{ActionStart, ActionStop, ActionRestart}

// ParseAction matches s against Actions.
func ParseAction(s string) (Action, error) {
	a, ok := enum.Parse(s, Actions...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, s)
	}
	return a, nil
}

// Dispatch runs a on c. Starting a running container and stopping a stopped
// one do nothing.
func Dispatch(ctx context.Context, id string, c Container, a Action) error {
	switch a {
	case ActionStart:
		return start(ctx, id, c)
	case ActionStop:
		return stop(ctx, id, c)
	case ActionRestart:
		if err := stop(ctx, id, c); err != nil {
			return err
		}
		return start(ctx, id, c)
	default:
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownAction, a)
	}
}

func start(ctx context.Context, id string, c Container) error {
	if c.IsRunning() {
		return nil
	}
	return errspkg.Lifecycle("start", id, c.Start(ctx))
}

func stop(ctx context.Context, id string, c Container) error {
	if !c.IsRunning() {
		return nil
	}
	return errspkg.Lifecycle("stop", id, c.Stop(ctx))
}

// StartAll starts every auto-startup container in ascending phase order.
// Containers without a phase start in phase 0.
func StartAll(ctx context.Context, r *registry.Registry) error {
	for _, entry := range phased(r) {
		if p, ok := entry.Object.(Phased); ok && !p.AutoStartup() {
			continue
		}
		if err := start(ctx, entry.Name, entry.Object); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every running container in descending phase order and
// returns the first failure after trying them all.
func StopAll(ctx context.Context, r *registry.Registry) error {
	entries := phased(r)
	var first error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := stop(ctx, entries[i].Name, entries[i].Object); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func phased(r *registry.Registry) []registry.Named[Container] {
	entries := registry.All[Container](r)
	sort.SliceStable(entries, func(i, j int) bool {
		return phaseOf(entries[i].Object) < phaseOf(entries[j].Object)
	})
	return entries
}

func phaseOf(c Container) int {
	if p, ok := c.(Phased); ok {
		return p.Phase()
	}
	return 0
}
