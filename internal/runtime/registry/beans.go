package registry

import errspkg "github.com/drblury/actuator/internal/runtime/errors"

// Beans binds one capability T to its snapshot type S.
type Beans[T any, S any] struct {
	Registry *Registry
	// Kind names the capability in NotFound errors.
	Kind    string
	Convert func(name string, obj T) S
}

// List converts every object implementing T.
func (b Beans[T, S]) List() map[string]S {
	entries := All[T](b.Registry)
	out := make(map[string]S, len(entries))
	for _, e := range entries {
		out[e.Name] = b.Convert(e.Name, e.Object)
	}
	return out
}

// Get converts the object registered under name.
func (b Beans[T, S]) Get(name string) (S, error) {
	obj, err := b.Lookup(name)
	if err != nil {
		var zero S
		return zero, err
	}
	return b.Convert(name, obj), nil
}

// Lookup returns the live object, or a NotFound error when name is unknown or
// does not implement T.
func (b Beans[T, S]) Lookup(name string) (T, error) {
	obj, ok := Lookup[T](b.Registry, name)
	if !ok {
		var zero T
		return zero, errspkg.NotFound(b.Kind, name)
	}
	return obj, nil
}

// Each calls fn for every object implementing T in registration order and
// stops at the first error.
func (b Beans[T, S]) Each(fn func(name string, obj T) error) error {
	for _, e := range All[T](b.Registry) {
		if err := fn(e.Name, e.Object); err != nil {
			return err
		}
	}
	return nil
}
