// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It renders text/plain in Prometheus exposition format without
// pulling in the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewRegistry()

// Registry aggregates counters, gauges, and histograms.
type Registry struct {
	counters   sync.Map // name -> *Counter
	gauges     sync.Map // name -> *Gauge
	histograms sync.Map // name -> *Histogram
	startTime  time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// Uptime returns how long the registry has been running.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// ObserveSince records the elapsed time since start, in seconds.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Counter returns or creates a counter with the given name.
func (r *Registry) Counter(name, help string) *Counter {
	if v, ok := r.counters.Load(name); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help}
	actual, _ := r.counters.LoadOrStore(name, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name.
func (r *Registry) Gauge(name, help string) *Gauge {
	if v, ok := r.gauges.Load(name); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help}
	actual, _ := r.gauges.LoadOrStore(name, g)
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if v, ok := r.histograms.Load(name); ok {
		return v.(*Histogram)
	}
	sort.Float64s(buckets)
	hb := make([]histBucket, 0, len(buckets)+1)
	for _, b := range buckets {
		hb = append(hb, histBucket{le: b})
	}
	if len(hb) == 0 || !math.IsInf(hb[len(hb)-1].le, 1) {
		hb = append(hb, histBucket{le: math.Inf(1)})
	}
	h := &Histogram{name: name, help: help, buckets: hb}
	actual, _ := r.histograms.LoadOrStore(name, h)
	return actual.(*Histogram)
}

// Handler returns an http.HandlerFunc that renders the registry in
// Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP kisanbot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE kisanbot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "kisanbot_uptime_seconds %d\n\n", int64(r.Uptime().Seconds()))

		r.counters.Range(func(_, value any) bool {
			ctr := value.(*Counter)
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
			return true
		})

		r.gauges.Range(func(_, value any) bool {
			g := value.(*Gauge)
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
			return true
		})

		r.histograms.Range(func(_, value any) bool {
			h := value.(*Histogram)
			h.mu.Lock()
			defer h.mu.Unlock()

			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			for _, b := range h.buckets {
				le := fmt.Sprintf("%g", b.le)
				if math.IsInf(b.le, 1) {
					le = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", h.name, le, b.count)
			}
			fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
			return true
		})

		fmt.Fprint(w, sb.String())
	}
}

// Pre-defined metrics used across the application.
var (
	MessagesReceived  = Collector.Counter("kisanbot_messages_received_total", "Webhook messages accepted for processing")
	RepliesSent       = Collector.Counter("kisanbot_replies_sent_total", "Replies delivered to the channel")
	DeliveryFailures  = Collector.Counter("kisanbot_delivery_failures_total", "Replies that failed to deliver")
	SignatureFailures = Collector.Counter("kisanbot_signature_failures_total", "Webhook requests rejected for bad signatures")
	MalformedPayloads = Collector.Counter("kisanbot_malformed_payloads_total", "Webhook payloads that failed normalization")

	DuplicatesDropped    = Collector.Counter("kisanbot_duplicates_dropped_total", "Redelivered messages skipped by dedup")
	ValidationRejections = Collector.Counter("kisanbot_validation_rejections_total", "Generated responses replaced by the fallback")
	AdapterFailures      = Collector.Counter("kisanbot_adapter_failures_total", "Media adapter failures")
	GenerationFailures   = Collector.Counter("kisanbot_generation_failures_total", "Backend generation failures after retry")

	ActiveWorkers = Collector.Gauge("kisanbot_active_workers", "Messages currently being processed")

	GenerationLatency = Collector.Histogram("kisanbot_generation_latency_seconds", "Backend generation latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
	ProcessingLatency = Collector.Histogram("kisanbot_processing_latency_seconds", "End-to-end message processing latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)
