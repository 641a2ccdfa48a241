// Package registry holds the named live objects managed by the actuator and
// exposes them per capability.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Registry is an ordered set of named objects. Lookups by capability are
// plain type assertions on the stored values.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	objects map[string]any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{objects: make(map[string]any)}
}

// Register adds obj under name. Names are unique.
func (r *Registry) Register(name string, obj any) error {
	if name == "" {
		return errspkg.ErrNameRequired
	}
	if obj == nil {
		return fmt.Errorf("registry: object %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.objects[name]; exists {
		return fmt.Errorf("%w: %q", errspkg.ErrDuplicateName, name)
	}
	r.names = append(r.names, name)
	r.objects[name] = obj
	return nil
}

// MustRegister panics if Register fails.
func (r *Registry) MustRegister(name string, obj any) {
	if err := r.Register(name, obj); err != nil {
		panic(err)
	}
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[name]; !ok {
		return false
	}
	delete(r.objects, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i:i], r.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Object returns the raw object registered under name.
func (r *Registry) Object(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[name]
	return obj, ok
}

// Named pairs an object with its registered name.
type Named[T any] struct {
	Name   string
	Object T
}

// Lookup returns the object registered under name if it implements T.
func Lookup[T any](r *Registry, name string) (T, bool) {
	obj, ok := r.Object(name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := obj.(T)
	return typed, ok
}

// All returns every object implementing T in registration order.
func All[T any](r *Registry) []Named[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Named[T]
	for _, name := range r.names {
		if typed, ok := r.objects[name].(T); ok {
			out = append(out, Named[T]{Name: name, Object: typed})
		}
	}
	return out
}

// Refresher is implemented by objects that re-read their configuration from
// the configuration layers.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Refresh calls Refresh on every Refresher and joins the failures. Every
// object is refreshed even when an earlier one fails.
func Refresh(ctx context.Context, r *Registry) error {
	var errs []error
	for _, entry := range All[Refresher](r) {
		if err := entry.Object.Refresh(ctx); err != nil {
			errs = append(errs, errspkg.Lifecycle("refresh", entry.Name, err))
		}
	}
	return errors.Join(errs...)
}
