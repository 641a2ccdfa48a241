package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const (
	sampleCPU      = "/cpu/classes/total:cpu-seconds"
	sampleHeap     = "/memory/classes/heap/objects:bytes"
	sampleRoutines = "/sched/goroutines:goroutines"
)

// resourceTracker samples process CPU and heap usage for the index page.
// CPU is reported as the share of all cores used since the previous sample.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: sampleCPU}, {Name: sampleHeap}, {Name: sampleRoutines}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.samples)
	now := time.Now()

	var usage ResourceUsage
	if v := r.samples[0].Value; v.Kind() == metrics.KindFloat64 {
		cpu := v.Float64()
		if !r.lastSample.IsZero() {
			wall := now.Sub(r.lastSample).Seconds()
			if wall > 0 && r.numCPU > 0 {
				usage.CPUPercent = (cpu - r.lastCPUSeconds) / wall / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpu
	}
	r.lastSample = now

	if v := r.samples[1].Value; v.Kind() == metrics.KindUint64 {
		usage.MemoryBytes = v.Uint64()
	}
	if v := r.samples[2].Value; v.Kind() == metrics.KindUint64 {
		usage.Goroutines = int(v.Uint64())
	} else {
		usage.Goroutines = runtime.NumGoroutine()
	}
	return usage
}
