// Package telemetry provides lightweight in-process counters and
// histograms as a stand-in for a Prometheus scrape endpoint. There is no
// long-lived server here to scrape (see DESIGN.md), so metrics are read
// in-process through Snapshot instead of an HTTP handler. The CLI's
// `stats` subcommand prints catalog statistics, not these metrics.
package telemetry

import (
	"sort"
	"strings"
	"sync"
)

// Counter is a monotonically increasing value, optionally partitioned by
// label values (mirrors the shape of a Prometheus CounterVec without the
// registration/collection machinery).
type Counter struct {
	name       string
	labelNames []string

	mu     sync.Mutex
	values map[string]uint64
}

func newCounter(name string, labelNames ...string) *Counter {
	return &Counter{name: name, labelNames: labelNames, values: map[string]uint64{}}
}

func labelKey(values []string) string { return strings.Join(values, "\x1f") }

// WithLabelValues increments the counter partition for the given label
// values (must align positionally with the label names it was created
// with) and returns the running total for that partition.
func (c *Counter) WithLabelValues(values ...string) uint64 {
	return c.Add(1, values...)
}

// Add increments a label partition by n and returns the new total.
func (c *Counter) Add(n uint64, values ...string) uint64 {
	key := labelKey(values)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] += n
	return c.values[key]
}

// Snapshot returns each label partition's current value, keyed by the
// joined label values in the order WithLabelValues was called.
func (c *Counter) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Histogram tracks count/sum/min/max for a sequence of observations —
// enough for an average and a range without a scrape-format bucket set.
type Histogram struct {
	name string

	mu       sync.Mutex
	count    uint64
	sum      float64
	min, max float64
}

func newHistogram(name string) *Histogram {
	return &Histogram{name: name}
}

// Observe records one sample.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.sum += v
	h.count++
}

// HistogramSnapshot is a point-in-time read of a Histogram's accumulated stats.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Min     float64
	Max     float64
	Average float64
}

// Snapshot returns the histogram's current statistics.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	avg := 0.0
	if h.count > 0 {
		avg = h.sum / float64(h.count)
	}
	return HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max, Average: avg}
}

// Registry owns a named set of counters and histograms.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{counters: map[string]*Counter{}, histograms: map[string]*Histogram{}}
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string, labelNames ...string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := newCounter(name, labelNames...)
	r.counters[name] = c
	return c
}

// Histogram returns the named histogram, creating it on first use.
func (r *Registry) Histogram(name string) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := newHistogram(name)
	r.histograms[name] = h
	return h
}

// Snapshot is a point-in-time dump of every registered metric, suitable
// for the CLI's `stats` subcommand or a structured log field.
type Snapshot struct {
	Counters   map[string]map[string]uint64
	Histograms map[string]HistogramSnapshot
}

// Snapshot reads every counter and histogram currently registered.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	histNames := make([]string, 0, len(r.histograms))
	for name := range r.histograms {
		histNames = append(histNames, name)
	}
	counters := r.counters
	histograms := r.histograms
	r.mu.Unlock()

	sort.Strings(names)
	sort.Strings(histNames)

	out := Snapshot{Counters: make(map[string]map[string]uint64, len(names)), Histograms: make(map[string]HistogramSnapshot, len(histNames))}
	for _, name := range names {
		out.Counters[name] = counters[name].Snapshot()
	}
	for _, name := range histNames {
		out.Histograms[name] = histograms[name].Snapshot()
	}
	return out
}

// Default is the process-wide registry used by callers that don't carry
// their own Registry reference through — mirrors the teacher's
// package-level promauto registration convention without the global
// Prometheus registry underneath it.
var Default = NewRegistry()
