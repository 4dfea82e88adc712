// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for askbot. It outputs text/plain in Prometheus exposition format
// without requiring the heavy prometheus/client_golang dependency.
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
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  string
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

// --- Registration helpers ---

// Counter returns or creates a counter with the given name and label set.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and label set.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and label set.
// A +Inf bucket is appended when the caller does not provide one.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	sort.Float64s(buckets)
	if len(buckets) == 0 || !math.IsInf(buckets[len(buckets)-1], 1) {
		buckets = append(buckets, math.Inf(1))
	}
	hb := make([]histBucket, len(buckets))
	for i, b := range buckets {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// --- Prometheus text rendering ---

// Render writes all metrics in Prometheus text format.
func (c *MetricsCollector) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP askbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE askbot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "askbot_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

	helpWritten := make(map[string]bool)
	c.counters.Range(func(key, value any) bool {
		ctr := value.(*Counter)
		if !helpWritten[ctr.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			helpWritten[ctr.name] = true
		}
		if ctr.labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", ctr.name, ctr.labels, ctr.Value())
		} else {
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
		}
		return true
	})

	helpWritten = make(map[string]bool)
	c.gauges.Range(func(key, value any) bool {
		g := value.(*Gauge)
		if !helpWritten[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			helpWritten[g.name] = true
		}
		if g.labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", g.name, g.labels, g.Value())
		} else {
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
		}
		return true
	})

	c.histograms.Range(func(key, value any) bool {
		h := value.(*Histogram)
		h.mu.Lock()
		defer h.mu.Unlock()

		fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
		fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
		bucketPrefix := h.name + "_bucket{"
		if h.labels != "" {
			bucketPrefix += h.labels + ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%sle=%q} %d\n", bucketPrefix, le, b.count)
		}
		if h.labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", h.name+"_count", h.labels, h.count)
			fmt.Fprintf(&sb, "%s{%s} %f\n", h.name+"_sum", h.labels, h.sum)
		} else {
			fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
		}
		return true
	})

	return sb.String()
}

// Handler returns an http.HandlerFunc that serves the metrics endpoint.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

// --- Pre-defined metrics used across the application ---

var (
	QuestionsTotal   = Collector.Counter("askbot_questions_total", "Total questions received", "")
	AnswersFound     = Collector.Counter("askbot_answers_total", "Total answers produced", `found="true"`)
	AnswersNotFound  = Collector.Counter("askbot_answers_total", "Total answers produced", `found="false"`)
	ValidationErrors = Collector.Counter("askbot_validation_errors_total", "Questions rejected by validation", "")

	FetchPages        = Collector.Counter("askbot_fetch_pages_total", "Pages fetched from the message source", "")
	FetchPageRetries  = Collector.Counter("askbot_fetch_page_retries_total", "Retried page requests", "")
	FetchPagesSkipped = Collector.Counter("askbot_fetch_pages_skipped_total", "Pages skipped after exhausting retries", "")

	CorpusMessages      = Collector.Gauge("askbot_corpus_messages", "Messages in the current corpus snapshot", "")
	CorpusRefreshes     = Collector.Counter("askbot_corpus_refreshes_total", "Successful corpus refreshes", "")
	CorpusRefreshErrors = Collector.Counter("askbot_corpus_refresh_errors_total", "Failed corpus refreshes", "")
	CorpusStaleServes   = Collector.Counter("askbot_corpus_stale_serves_total", "Requests served from a stale snapshot", "")

	ProviderLatency = Collector.Histogram("askbot_provider_latency_seconds", "LLM provider request latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
	RetrieverCandidates = Collector.Histogram("askbot_retriever_candidates", "Candidate messages selected per question", "",
		[]float64{0, 1, 5, 10, 20, 50, 100})
	HTTPDuration = Collector.Histogram("askbot_http_request_duration_seconds", "HTTP request duration in seconds", "",
		[]float64{0.05, 0.1, 0.5, 1, 5, 15, 60})
)

// ProviderCalls returns the call counter for one provider.
func ProviderCalls(provider string) *Counter {
	return Collector.Counter("askbot_provider_calls_total", "LLM provider calls", `provider=`+quoteLabel(provider))
}

// ProviderErrors returns the error counter for one provider.
func ProviderErrors(provider string) *Counter {
	return Collector.Counter("askbot_provider_errors_total", "Failed LLM provider calls", `provider=`+quoteLabel(provider))
}

// HTTPRequests returns the request counter for one status class ("2xx", "4xx", "5xx").
func HTTPRequests(class string) *Counter {
	return Collector.Counter("askbot_http_requests_total", "HTTP requests served", `code=`+quoteLabel(class))
}

func quoteLabel(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, ``) + `"`
}
