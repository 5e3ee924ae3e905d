package metrics

import (
	"sync"
	"time"
)

// HistogramBucket stores counts for a specific latency bound.
type HistogramBucket struct {
	Le    float64 // upper bound in seconds
	Count int64
}

// Histogram tracks latency distributions with bucket-estimated percentiles.
type Histogram struct {
	mu      sync.Mutex
	name    string
	buckets []HistogramBucket
	sum     float64
	count   int64
}

var defaultBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

func NewHistogram(name string) *Histogram {
	buckets := make([]HistogramBucket, len(defaultBuckets))
	for i, le := range defaultBuckets {
		buckets[i] = HistogramBucket{Le: le}
	}
	return &Histogram{name: name, buckets: buckets}
}

// Observe records a latency observation.
func (h *Histogram) Observe(d time.Duration) {
	sec := d.Seconds()
	h.mu.Lock()
	h.sum += sec
	h.count++
	for i := range h.buckets {
		if sec <= h.buckets[i].Le {
			h.buckets[i].Count++
		}
	}
	h.mu.Unlock()
}

// HistogramSnapshot is a copy of histogram state for exposition.
type HistogramSnapshot struct {
	Name    string
	Buckets []HistogramBucket
	Sum     float64
	Count   int64
	P50     float64
	P95     float64
	P99     float64
}

// Snapshot returns a thread-safe copy of current histogram state.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	buckets := make([]HistogramBucket, len(h.buckets))
	copy(buckets, h.buckets)
	snap := HistogramSnapshot{
		Name:    h.name,
		Buckets: buckets,
		Sum:     h.sum,
		Count:   h.count,
	}
	if h.count > 0 {
		for _, b := range buckets {
			if snap.P50 == 0 && b.Count >= int64(0.50*float64(h.count)) {
				snap.P50 = b.Le
			}
			if snap.P95 == 0 && b.Count >= int64(0.95*float64(h.count)) {
				snap.P95 = b.Le
			}
			if snap.P99 == 0 && b.Count >= int64(0.99*float64(h.count)) {
				snap.P99 = b.Le
			}
		}
	}
	return snap
}

// HistogramRegistry manages named histograms for latency tracking.
type HistogramRegistry struct {
	mu         sync.RWMutex
	histograms map[string]*Histogram
}

func NewHistogramRegistry() *HistogramRegistry {
	return &HistogramRegistry{histograms: map[string]*Histogram{}}
}

// ObserveDuration records a latency for the named endpoint, creating the
// histogram on first use.
func (hr *HistogramRegistry) ObserveDuration(name string, d time.Duration) {
	hr.mu.RLock()
	h, ok := hr.histograms[name]
	hr.mu.RUnlock()
	if !ok {
		hr.mu.Lock()
		h, ok = hr.histograms[name]
		if !ok {
			h = NewHistogram(name)
			hr.histograms[name] = h
		}
		hr.mu.Unlock()
	}
	h.Observe(d)
}

// Snapshots returns snapshots for all histograms, sorted by name.
func (hr *HistogramRegistry) Snapshots() []HistogramSnapshot {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	out := make([]HistogramSnapshot, 0, len(hr.histograms))
	for _, name := range SortedKeys(hr.histograms) {
		out = append(out, hr.histograms[name].Snapshot())
	}
	return out
}
