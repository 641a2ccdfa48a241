package runtime

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// EndpointStats counts the operations served by one endpoint.
type EndpointStats struct {
	mu sync.Mutex

	Invocations         uint64    `json:"invocations"`
	Failures            uint64    `json:"failures"`
	Writes              uint64    `json:"writes"`
	TotalProcessingTime int64     `json:"totalProcessingTimeNs"`
	LastInvokedAt       time.Time `json:"lastInvokedAt"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
}

// EndpointStatsSnapshot is a detached copy of EndpointStats.
type EndpointStatsSnapshot struct {
	Invocations         uint64            `json:"invocations"`
	Failures            uint64            `json:"failures"`
	Writes              uint64            `json:"writes"`
	TotalProcessingTime int64             `json:"totalProcessingTimeNs"`
	LastInvokedAt       time.Time         `json:"lastInvokedAt"`
	Latency             LatencyMetrics    `json:"latency"`
	Throughput          ThroughputMetrics `json:"throughput"`
	Errors              ErrorBreakdown    `json:"errors"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"averageNs"`
	P50Ns      int64 `json:"p50Ns"`
	P95Ns      int64 `json:"p95Ns"`
	P99Ns      int64 `json:"p99Ns"`
	LastNs     int64 `json:"lastNs"`
	SampleSize int   `json:"sampleSize"`
}

type ThroughputMetrics struct {
	CurrentRPS         float64 `json:"currentRps"`
	WindowSeconds      float64 `json:"windowSeconds"`
	OperationsInWindow uint64  `json:"operationsInWindow"`
}

// ErrorBreakdown counts failures by their HTTP class.
type ErrorBreakdown struct {
	NotFound   uint64 `json:"notFound"`
	BadRequest uint64 `json:"badRequest"`
	Lifecycle  uint64 `json:"lifecycle"`
	Other      uint64 `json:"other"`
	LastError  string `json:"lastError,omitempty"`
}

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpuPercent"`
	MemoryBytes uint64  `json:"memoryBytes"`
	Goroutines  int     `json:"goroutines"`
}

// ErrorCategory groups operation failures.
type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryNotFound   ErrorCategory = "notFound"
	ErrorCategoryBadRequest ErrorCategory = "badRequest"
	ErrorCategoryLifecycle  ErrorCategory = "lifecycle"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ErrorClassifier maps an operation error to a category. The category also
// selects the HTTP status.
type ErrorClassifier func(error) ErrorCategory

func newEndpointStats() *EndpointStats {
	return &EndpointStats{
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (s *EndpointStats) record(op OperationContext, err error, classifier ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Invocations++
	if op.Write() {
		s.Writes++
	}
	if err != nil {
		s.Failures++
	}
	s.TotalProcessingTime += int64(op.Duration)
	s.LastInvokedAt = time.Now().UTC()

	s.latencyWindow.Add(op.Duration)
	s.Latency = s.latencyWindow.Snapshot()
	s.Latency.AverageNs = s.TotalProcessingTime / int64(s.Invocations)

	tp := s.throughputWindow.AddAndSnapshot(time.Now())
	s.Throughput = ThroughputMetrics{
		CurrentRPS:         tp.CurrentRPS,
		WindowSeconds:      tp.WindowSeconds,
		OperationsInWindow: uint64(tp.Count),
	}

	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	s.Errors.Record(classifier(err), err)
}

// Snapshot returns a copy that is safe to marshal.
func (s *EndpointStats) Snapshot() EndpointStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EndpointStatsSnapshot{
		Invocations:         s.Invocations,
		Failures:            s.Failures,
		Writes:              s.Writes,
		TotalProcessingTime: s.TotalProcessingTime,
		LastInvokedAt:       s.LastInvokedAt,
		Latency:             s.Latency,
		Throughput:          s.Throughput,
		Errors:              s.Errors,
	}
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryNotFound:
		e.NotFound++
	case ErrorCategoryBadRequest:
		e.BadRequest++
	case ErrorCategoryLifecycle:
		e.Lifecycle++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, errspkg.ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, errspkg.ErrUnknownAction),
		errors.Is(err, errspkg.ErrUnknownLayer),
		errors.Is(err, errspkg.ErrUnknownOperator),
		errors.Is(err, errspkg.ErrInvalidParameter),
		errors.Is(err, errspkg.ErrNameRequired),
		errors.Is(err, errBadRequest):
		return ErrorCategoryBadRequest
	case errors.Is(err, errspkg.ErrLifecycle):
		return ErrorCategoryLifecycle
	default:
		return ErrorCategoryOther
	}
}
