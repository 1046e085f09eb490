// Package metrics exposes the gateway's Prometheus metrics: request/error
// counters, a latency histogram, per-model token counters, and the active
// connection gauge that Close-style request guards keep honest even when a
// client disconnects mid-stream.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private Prometheus registry so that multiple gateway
// instances (e.g. in tests) never collide on the global default registry.
type Collector struct {
	registry *prometheus.Registry

	activeConnections   prometheus.Gauge
	activeConnCount     atomic.Int64
	requestsTotal       prometheus.Counter
	errorsTotal         *prometheus.CounterVec
	requestDurationSecs *prometheus.HistogramVec
	inputTokensTotal    *prometheus.CounterVec
	outputTokensTotal   *prometheus.CounterVec
}

// New builds a Collector with all metrics registered against a fresh
// registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiro_gateway_active_connections",
			Help: "Number of in-flight proxy requests.",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiro_gateway_requests_total",
			Help: "Total number of proxy requests accepted.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiro_gateway_errors_total",
			Help: "Total number of proxy request errors by type.",
		}, []string{"error_type"}),
		requestDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiro_gateway_request_duration_seconds",
			Help:    "End-to-end request latency, by model.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		inputTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiro_gateway_input_tokens_total",
			Help: "Total input tokens billed, by model.",
		}, []string{"model"}),
		outputTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiro_gateway_output_tokens_total",
			Help: "Total output tokens produced, by model.",
		}, []string{"model"}),
	}

	c.registry.MustRegister(
		c.activeConnections,
		c.requestsTotal,
		c.errorsTotal,
		c.requestDurationSecs,
		c.inputTokensTotal,
		c.outputTokensTotal,
	)
	return c
}

// Registry returns the collector's private Prometheus registry, for mounting
// a `/metrics` handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ActiveConnections returns the current number of in-flight requests.
func (c *Collector) ActiveConnections() int64 {
	return c.activeConnCount.Load()
}

func (c *Collector) recordRequestStart() {
	c.activeConnCount.Add(1)
	c.activeConnections.Inc()
	c.requestsTotal.Inc()
}

func (c *Collector) recordRequestEnd(latency time.Duration, model string, inputTokens, outputTokens int64) {
	c.activeConnCount.Add(-1)
	c.activeConnections.Dec()

	c.requestDurationSecs.WithLabelValues(model).Observe(latency.Seconds())
	if inputTokens > 0 {
		c.inputTokensTotal.WithLabelValues(model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.outputTokensTotal.WithLabelValues(model).Add(float64(outputTokens))
	}
}

// RecordError increments the error counter for the given taxonomy type
// (auth, validation, upstream, internal, config).
func (c *Collector) RecordError(errType string) {
	c.errorsTotal.WithLabelValues(errType).Inc()
}

// RequestGuard tracks the lifetime of a single non-streaming request. It
// increments the active-connection gauge on creation and decrements it
// exactly once, however the request ends. Call Complete on the success path
// with final token counts; defer Close so that a panic, early return, or
// client disconnect before Complete still releases the gauge.
type RequestGuard struct {
	collector *Collector
	model     string
	start     time.Time
	completed bool
}

// NewRequestGuard starts tracking a request against model.
func NewRequestGuard(c *Collector, model string) *RequestGuard {
	c.recordRequestStart()
	return &RequestGuard{collector: c, model: model, start: time.Now()}
}

// Complete records the request's final latency and token counts. It is
// idempotent: only the first call has an effect.
func (g *RequestGuard) Complete(inputTokens, outputTokens int64) {
	if g.completed {
		return
	}
	g.completed = true
	g.collector.recordRequestEnd(time.Since(g.start), g.model, inputTokens, outputTokens)
}

// Close releases the active-connection slot if Complete was never called,
// without recording latency or token metrics. Intended for `defer` at the
// top of a handler so aborted requests never leak the gauge.
func (g *RequestGuard) Close() {
	if g.completed {
		return
	}
	g.completed = true
	g.collector.activeConnCount.Add(-1)
	g.collector.activeConnections.Dec()
}

// StreamingTracker mirrors RequestGuard for streaming responses, where the
// output token count is not known until the stream finishes (or is
// abandoned). The handle returned by OutputTokens is safe to update
// concurrently from the stream-copy goroutine.
type StreamingTracker struct {
	collector    *Collector
	model        string
	inputTokens  int64
	outputTokens atomic.Int64
	start        time.Time
	completed    bool
}

// NewStreamingTracker starts tracking a streaming request.
func NewStreamingTracker(c *Collector, model string, inputTokens int64) *StreamingTracker {
	c.recordRequestStart()
	return &StreamingTracker{collector: c, model: model, inputTokens: inputTokens, start: time.Now()}
}

// OutputTokens returns the atomic counter the stream pump should add to as
// usage events arrive.
func (t *StreamingTracker) OutputTokens() *atomic.Int64 {
	return &t.outputTokens
}

// Close finalizes the tracker, recording latency and the accumulated output
// token count. Idempotent. Intended for `defer` immediately after creation.
func (t *StreamingTracker) Close() {
	if t.completed {
		return
	}
	t.completed = true
	t.collector.recordRequestEnd(time.Since(t.start), t.model, t.inputTokens, t.outputTokens.Load())
}
