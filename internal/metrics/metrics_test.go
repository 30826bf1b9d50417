package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("test_total", "test counter")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}
	if again := r.Counter("test_total", "test counter"); again != c {
		t.Error("same name must return the same counter")
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.Gauge("test_gauge", "test gauge")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("expected 9, got %d", g.Value())
	}
}

func TestHistogram_Buckets(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("test_seconds", "test histogram", []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count != 3 {
		t.Errorf("expected 3 observations, got %d", h.count)
	}
	// buckets: le=1 holds 1, le=5 holds 2, +Inf holds 3
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 || h.buckets[2].count != 3 {
		t.Errorf("unexpected bucket counts: %+v", h.buckets)
	}
}

func TestHandler_Exposition(t *testing.T) {
	r := NewRegistry()
	r.Counter("kb_messages_total", "messages").Add(7)
	r.Gauge("kb_workers", "workers").Set(2)
	r.Histogram("kb_latency_seconds", "latency", []float64{1}).Observe(0.2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler()(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"kisanbot_uptime_seconds",
		"# TYPE kb_messages_total counter",
		"kb_messages_total 7",
		"kb_workers 2",
		`kb_latency_seconds_bucket{le="+Inf"} 1`,
		"kb_latency_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type: %s", ct)
	}
}
