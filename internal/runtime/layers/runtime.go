package layers

import (
	"runtime"
	"runtime/debug"
	"runtime/metrics"
)

const (
	metricHeapFree   = "/memory/classes/heap/free:bytes"
	metricHeapUnused = "/memory/classes/heap/unused:bytes"
	metricTotal      = "/memory/classes/total:bytes"
)

var runtimeKeys = []string{"availableProcessors", "gomaxprocs", "goroutines", "freeMemory", "totalMemory", "maxMemory"}

// RuntimeLayer exposes live process figures. Values are sampled on every
// read, so it is listed first in a dump but never takes part in lookups.
type RuntimeLayer struct{}

func NewRuntimeLayer() RuntimeLayer { return RuntimeLayer{} }

func (RuntimeLayer) Name() string   { return "runtime" }
func (RuntimeLayer) Kind() Kind     { return KindRuntime }
func (RuntimeLayer) Keys() []string { return append([]string(nil), runtimeKeys...) }

func (RuntimeLayer) Get(key string) (any, bool) {
	switch key {
	case "availableProcessors":
		return runtime.NumCPU(), true
	case "gomaxprocs":
		return runtime.GOMAXPROCS(0), true
	case "goroutines":
		return runtime.NumGoroutine(), true
	case "freeMemory":
		s := readMemory()
		return bytesOf(s[0]) + bytesOf(s[1]), true
	case "totalMemory":
		return bytesOf(readMemory()[2]), true
	case "maxMemory":
		// A negative input only reads the current limit.
		return debug.SetMemoryLimit(-1), true
	default:
		return nil, false
	}
}

func readMemory() []metrics.Sample {
	samples := []metrics.Sample{{Name: metricHeapFree}, {Name: metricHeapUnused}, {Name: metricTotal}}
	metrics.Read(samples)
	return samples
}

func bytesOf(s metrics.Sample) uint64 {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s.Value.Uint64()
}
