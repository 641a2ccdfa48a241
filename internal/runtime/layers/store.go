package layers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// RefreshFunc re-initializes the live objects that read configuration.
type RefreshFunc func(ctx context.Context) error

// Store holds the layers in priority order. The runtime layer is listed but
// never consulted by Get or Search.
type Store struct {
	mu      sync.RWMutex
	layers  []Layer
	refresh RefreshFunc
}

// NewStore keeps layers in the given order. refresh may be nil.
func NewStore(refresh RefreshFunc, layers ...Layer) *Store {
	return &Store{layers: append([]Layer(nil), layers...), refresh: refresh}
}

// Layers returns the layers in priority order.
func (s *Store) Layers() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Layer(nil), s.layers...)
}

// Add appends l at the lowest priority.
func (s *Store) Add(l Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, l)
}

func (s *Store) chain() []Layer {
	all := s.Layers()
	out := all[:0]
	for _, l := range all {
		if l.Kind() != KindRuntime {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) find(kind Kind) Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.layers {
		if l.Kind() == kind {
			return l
		}
	}
	return nil
}

// Lookup returns the entry of the first chain layer defining key.
func (s *Store) Lookup(key string) (Entry, bool) {
	for _, l := range s.chain() {
		if v, ok := l.Get(key); ok {
			return Entry{Key: key, Value: v, Layer: l.Name()}, true
		}
	}
	return Entry{}, false
}

// Get returns the merged value of key.
func (s *Store) Get(key string) (any, bool) {
	e, ok := s.Lookup(key)
	return e.Value, ok
}

// Search returns every key of every enumerable chain layer that matches
// pattern, in priority order. A key defined by several layers is returned
// once per layer.
func (s *Store) Search(pattern string, op Operator) []Entry {
	var out []Entry
	for _, l := range s.chain() {
		en, ok := l.(Enumerable)
		if !ok {
			continue
		}
		for _, key := range en.Keys() {
			if !op.Match(key, pattern) {
				continue
			}
			v, _ := l.Get(key)
			out = append(out, Entry{Key: key, Value: v, Layer: l.Name()})
		}
	}
	return out
}

// Entries lists every entry of the layers of kind.
func (s *Store) Entries(kind Kind) []Entry {
	var out []Entry
	for _, l := range s.Layers() {
		if l.Kind() == kind {
			out = append(out, entriesOf(l)...)
		}
	}
	return out
}

func entriesOf(l Layer) []Entry {
	en, ok := l.(Enumerable)
	if !ok {
		return nil
	}
	keys := en.Keys()
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		v, _ := l.Get(key)
		out = append(out, Entry{Key: key, Value: v, Layer: l.Name()})
	}
	return out
}

// Dump writes the layers in the key=value format. An empty selector dumps
// the runtime layer and then every non-empty enumerable layer, each under a
// banner. A selector dumps the layers of that kind without banners.
func (s *Store) Dump(w io.Writer, selector string) error {
	if selector != "" {
		kind, err := ParseKind(selector)
		if err != nil {
			return err
		}
		return WriteEntries(w, s.Entries(kind))
	}

	all := s.Layers()
	for _, l := range all {
		if l.Kind() != KindRuntime {
			continue
		}
		if err := WriteBanner(w, l.Name()); err != nil {
			return err
		}
		if err := WriteEntries(w, entriesOf(l)); err != nil {
			return err
		}
	}
	for _, l := range all {
		if l.Kind() == KindRuntime {
			continue
		}
		entries := entriesOf(l)
		if len(entries) == 0 {
			continue
		}
		if err := WriteBanner(w, l.Name()); err != nil {
			return err
		}
		if err := WriteEntries(w, entries); err != nil {
			return err
		}
	}
	return nil
}

// Put writes key into the dynamic layer, creating it at the highest
// priority on first use. Other known layers are read-only and ignore the
// write.
func (s *Store) Put(layer, key string, value any) error {
	kind, err := ParseKind(layer)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: name is required", errspkg.ErrInvalidParameter)
	}
	if kind != KindDynamic {
		return nil
	}
	s.dynamic().Set(key, value)
	return nil
}

// dynamic returns the dynamic layer, inserting it just after the runtime
// layer when missing.
func (s *Store) dynamic() *DynamicLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if d, ok := l.(*DynamicLayer); ok {
			return d
		}
	}
	d := NewDynamicLayer()
	at := 0
	for at < len(s.layers) && s.layers[at].Kind() == KindRuntime {
		at++
	}
	s.layers = append(s.layers[:at], append([]Layer{d}, s.layers[at:]...)...)
	return d
}

// DeleteLayer removes the dynamic or database layer and refreshes the
// dependent objects if it existed. Other known layers are left alone.
func (s *Store) DeleteLayer(ctx context.Context, layer string) error {
	kind, err := ParseKind(layer)
	if err != nil {
		return err
	}
	if kind != KindDynamic && kind != KindDatabase {
		return nil
	}

	s.mu.Lock()
	var removed []Layer
	kept := s.layers[:0]
	for _, l := range s.layers {
		if l.Kind() == kind {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	s.layers = kept
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	var errs []error
	for _, l := range removed {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	errs = append(errs, s.Refresh(ctx))
	return errors.Join(errs...)
}

// DeleteKey removes key from the dynamic layer. Other known layers ignore
// the call.
func (s *Store) DeleteKey(layer, key string) error {
	kind, err := ParseKind(layer)
	if err != nil {
		return err
	}
	if kind != KindDynamic {
		return nil
	}
	if d, ok := s.find(KindDynamic).(*DynamicLayer); ok {
		d.Delete(key)
	}
	return nil
}

// Refresh re-initializes the dependent objects.
func (s *Store) Refresh(ctx context.Context) error {
	if s.refresh == nil {
		return nil
	}
	return s.refresh(ctx)
}

// Reload re-reads every reloadable layer and then refreshes. Every layer is
// reloaded even when an earlier one fails.
func (s *Store) Reload(ctx context.Context) error {
	var errs []error
	for _, l := range s.Layers() {
		if r, ok := l.(Reloader); ok {
			if err := r.Reload(ctx); err != nil {
				errs = append(errs, errspkg.Lifecycle("reload", l.Name(), err))
			}
		}
	}
	errs = append(errs, s.Refresh(ctx))
	return errors.Join(errs...)
}
