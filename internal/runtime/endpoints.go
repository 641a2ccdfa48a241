package runtime

import (
	"context"

	configpkg "github.com/drblury/actuator/internal/runtime/config"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/httpclient"
	"github.com/drblury/actuator/internal/runtime/interceptor"
	"github.com/drblury/actuator/internal/runtime/listener"
	"github.com/drblury/actuator/internal/runtime/params"
	"github.com/drblury/actuator/internal/runtime/registry"
)

// Endpoint is one bean endpoint: a named view over the registry objects
// implementing a single capability.
type Endpoint interface {
	Name() string
	// List returns the snapshots of every object keyed by name.
	List() any
	Get(name string) (any, error)
	Update(ctx context.Context, name string, values params.Values) error
	Action(ctx context.Context, name, action string) error
	// ActionAll applies the action to every object in registration order.
	ActionAll(ctx context.Context, action string) error
}

type beanEndpoint[T, S, A, P any] struct {
	name     string
	beans    registry.Beans[T, S]
	action   func(string) (A, error)
	dispatch func(ctx context.Context, name string, obj T, a A) error
	patch    func(params.Values) (P, error)
	update   func(ctx context.Context, name string, obj T, p P) error
}

func (e *beanEndpoint[T, S, A, P]) Name() string { return e.name }

func (e *beanEndpoint[T, S, A, P]) List() any { return e.beans.List() }

func (e *beanEndpoint[T, S, A, P]) Get(name string) (any, error) {
	return e.beans.Get(name)
}

func (e *beanEndpoint[T, S, A, P]) Update(ctx context.Context, name string, values params.Values) error {
	obj, err := e.beans.Lookup(name)
	if err != nil {
		return err
	}
	p, err := e.patch(values)
	if err != nil {
		return err
	}
	return e.update(ctx, name, obj, p)
}

func (e *beanEndpoint[T, S, A, P]) Action(ctx context.Context, name, action string) error {
	a, err := e.action(action)
	if err != nil {
		return err
	}
	obj, err := e.beans.Lookup(name)
	if err != nil {
		return err
	}
	return e.dispatch(ctx, name, obj, a)
}

func (e *beanEndpoint[T, S, A, P]) ActionAll(ctx context.Context, action string) error {
	a, err := e.action(action)
	if err != nil {
		return err
	}
	return e.beans.Each(func(name string, obj T) error {
		return e.dispatch(ctx, name, obj, a)
	})
}

// ExecutorsEndpoint manages every registered executor.Executor.
func ExecutorsEndpoint(reg *registry.Registry) Endpoint {
	return &beanEndpoint[executor.Executor, executor.Snapshot, executor.Action, executor.Patch]{
		name: configpkg.EndpointExecutors,
		beans: registry.Beans[executor.Executor, executor.Snapshot]{
			Registry: reg, Kind: "executor", Convert: executor.Convert,
		},
		action: executor.ParseAction,
		dispatch: func(_ context.Context, name string, e executor.Executor, a executor.Action) error {
			return executor.Dispatch(name, e, a)
		},
		patch: executor.ParsePatch,
		update: func(_ context.Context, _ string, e executor.Executor, p executor.Patch) error {
			return executor.Apply(e, p)
		},
	}
}

// HTTPClientsEndpoint manages every registered httpclient.Template.
func HTTPClientsEndpoint(reg *registry.Registry) Endpoint {
	return &beanEndpoint[httpclient.Template, httpclient.Snapshot, httpclient.Action, httpclient.Patch]{
		name: configpkg.EndpointHTTPClients,
		beans: registry.Beans[httpclient.Template, httpclient.Snapshot]{
			Registry: reg, Kind: "httpclient", Convert: httpclient.Convert,
		},
		action:   httpclient.ParseAction,
		dispatch: httpclient.Dispatch,
		patch:    httpclient.ParsePatch,
		update: func(_ context.Context, name string, t httpclient.Template, p httpclient.Patch) error {
			return httpclient.Update(name, t, p)
		},
	}
}

// InterceptorsEndpoint manages every registered interceptor.Interceptor.
func InterceptorsEndpoint(reg *registry.Registry) Endpoint {
	return &beanEndpoint[interceptor.Interceptor, interceptor.Snapshot, interceptor.Action, interceptor.Patch]{
		name: configpkg.EndpointInterceptors,
		beans: registry.Beans[interceptor.Interceptor, interceptor.Snapshot]{
			Registry: reg, Kind: "interceptor", Convert: interceptor.Convert,
		},
		action:   interceptor.ParseAction,
		dispatch: interceptor.Dispatch,
		patch:    interceptor.ParsePatch,
		update:   interceptor.Update,
	}
}

// ListenersEndpoint manages every registered listener.Container.
func ListenersEndpoint(reg *registry.Registry) Endpoint {
	return &beanEndpoint[listener.Container, listener.Snapshot, listener.Action, listener.Patch]{
		name: configpkg.EndpointListeners,
		beans: registry.Beans[listener.Container, listener.Snapshot]{
			Registry: reg, Kind: "listener", Convert: listener.Convert,
		},
		action:   listener.ParseAction,
		dispatch: listener.Dispatch,
		patch:    listener.ParsePatch,
		update:   listener.Update,
	}
}

// BeanEndpoints returns the four bean endpoints in their index order.
func BeanEndpoints(reg *registry.Registry) []Endpoint {
	return []Endpoint{
		ExecutorsEndpoint(reg),
		HTTPClientsEndpoint(reg),
		InterceptorsEndpoint(reg),
		ListenersEndpoint(reg),
	}
}
