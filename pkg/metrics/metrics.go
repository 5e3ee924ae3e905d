package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry aggregates connector request metrics in-process.
type Registry struct {
	mu          sync.RWMutex
	endpoint    map[string]*EndpointStat
	classified  map[string]int64
	synthesized map[string]int64
	parseErrors int64
	gauges      map[string]float64
	Histograms  *HistogramRegistry
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt     string                  `json:"generated_at"`
	Endpoints       map[string]EndpointStat `json:"endpoints"`
	Classifications map[string]int64        `json:"classifications"`
	Syntheses       map[string]int64        `json:"syntheses"`
	ParseErrors     int64                   `json:"parse_errors_total"`
	Gauges          map[string]float64      `json:"gauges"`
	Histograms      []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:    map[string]*EndpointStat{},
		classified:  map[string]int64{},
		synthesized: map[string]int64{},
		gauges:      map[string]float64{},
		Histograms:  NewHistogramRegistry(),
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

// IncClassified counts a classification result by pattern name.
func (r *Registry) IncClassified(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	r.mu.Lock()
	r.classified[pattern]++
	r.mu.Unlock()
}

// IncSynthesized counts an example-policy build by pattern name.
func (r *Registry) IncSynthesized(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	r.mu.Lock()
	r.synthesized[pattern]++
	r.mu.Unlock()
}

func (r *Registry) IncParseError() {
	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Endpoints:       make(map[string]EndpointStat, len(r.endpoint)),
		Classifications: make(map[string]int64, len(r.classified)),
		Syntheses:       make(map[string]int64, len(r.synthesized)),
		ParseErrors:     r.parseErrors,
		Gauges:          make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.classified {
		out.Classifications[k] = v
	}
	for k, v := range r.synthesized {
		out.Syntheses[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

// PrometheusHandler renders the snapshot in Prometheus text exposition format.
func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP connector_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE connector_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "connector_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP connector_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE connector_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "connector_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP connector_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE connector_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "connector_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, snap.Endpoints[ep].AverageMillis)
		}
		b.WriteString("# HELP connector_pattern_classified_total classification results by pattern\n")
		b.WriteString("# TYPE connector_pattern_classified_total counter\n")
		for _, p := range SortedKeys(snap.Classifications) {
			fmt.Fprintf(b, "connector_pattern_classified_total{pattern=%q} %d\n", p, snap.Classifications[p])
		}
		b.WriteString("# HELP connector_pattern_synthesized_total example policies built by pattern\n")
		b.WriteString("# TYPE connector_pattern_synthesized_total counter\n")
		for _, p := range SortedKeys(snap.Syntheses) {
			fmt.Fprintf(b, "connector_pattern_synthesized_total{pattern=%q} %d\n", p, snap.Syntheses[p])
		}
		b.WriteString("# HELP connector_parse_errors_total policy documents rejected by the parser\n")
		b.WriteString("# TYPE connector_parse_errors_total counter\n")
		fmt.Fprintf(b, "connector_parse_errors_total %d\n", snap.ParseErrors)
		b.WriteString("# HELP connector_gauge operational gauge metrics\n")
		b.WriteString("# TYPE connector_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "connector_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		for _, h := range snap.Histograms {
			b.WriteString("# HELP connector_latency_seconds latency histogram\n")
			b.WriteString("# TYPE connector_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "connector_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "connector_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "connector_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "connector_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "connector_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
