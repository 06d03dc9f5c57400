package observability

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Metrics records counters, gauges and timings. Implementations must be safe
// for concurrent use.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag labels a metric.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

const maxTimings = 256

// InMemoryMetrics keeps metrics in process. The worker exposes a snapshot on
// its health endpoint; tests read single series back.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	key := formatKey(name, tags)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	key := formatKey(name, tags)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Timing keeps at most maxTimings samples per series, dropping the oldest.
func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	key := formatKey(name, tags)
	m.mu.Lock()
	samples := append(m.timings[key], duration)
	if len(samples) > maxTimings {
		samples = samples[len(samples)-maxTimings:]
	}
	m.timings[key] = samples
	m.mu.Unlock()
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the last value set on a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetTimings returns the retained samples of a timing series.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.timings[formatKey(name, tags)])
}

// MetricsSnapshot is a point-in-time copy of the collector. Timings holds
// the mean of the retained samples in milliseconds.
type MetricsSnapshot struct {
	Counters map[string]int64   `json:"counters"`
	Gauges   map[string]float64 `json:"gauges"`
	Timings  map[string]float64 `json:"timings_ms"`
}

// Snapshot copies every series.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	timings := make(map[string]float64, len(m.timings))
	for key, samples := range m.timings {
		if len(samples) == 0 {
			continue
		}
		var total time.Duration
		for _, d := range samples {
			total += d
		}
		timings[key] = float64(total.Microseconds()) / 1000 / float64(len(samples))
	}
	return MetricsSnapshot{
		Counters: maps.Clone(m.counters),
		Gauges:   maps.Clone(m.gauges),
		Timings:  timings,
	}
}

// formatKey renders name{k=v,...} with tags sorted by key, so the order tags
// are passed in does not split a series.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := slices.Clone(tags)
	slices.SortFunc(sorted, func(a, b Tag) int { return strings.Compare(a.Key, b.Key) })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}

// Metric names.
const (
	MetricOperationTotal    = "dosely.operation.total"
	MetricOperationDuration = "dosely.operation.duration"
	MetricOperationErrors   = "dosely.operation.errors"

	MetricDosesMaterialized = "dosely.doses.materialized"
	MetricDosesMissed       = "dosely.doses.missed"

	MetricJobRuns     = "dosely.jobs.runs"
	MetricJobFailures = "dosely.jobs.failures"
	MetricJobRetries  = "dosely.jobs.retries"
	MetricJobSkipped  = "dosely.jobs.skipped"

	MetricEventsPublished    = "dosely.events.published"
	MetricEventsDeadLettered = "dosely.events.dead_lettered"
	MetricOutboxBacklog      = "dosely.outbox.backlog"
)
