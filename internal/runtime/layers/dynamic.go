package layers

import "sync"

// DynamicLayer is the writable in-memory layer fed by the put operation.
type DynamicLayer struct {
	mu      sync.RWMutex
	entries *ordered
}

func NewDynamicLayer() *DynamicLayer {
	return &DynamicLayer{entries: newOrdered()}
}

func (d *DynamicLayer) Name() string { return "dynamic" }
func (d *DynamicLayer) Kind() Kind   { return KindDynamic }

// Get treats a key stored without a value as undefined, so lookups fall
// through to lower layers. Keys still lists it.
func (d *DynamicLayer) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.entries.get(key)
	return v, ok && v != nil
}

func (d *DynamicLayer) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries.names()
}

func (d *DynamicLayer) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries.set(key, value)
}

// Delete reports whether key was present.
func (d *DynamicLayer) Delete(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.remove(key)
}

func (d *DynamicLayer) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries.len()
}
