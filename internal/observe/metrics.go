// Package observe provides observability primitives for the Moyeo meeting
// core: OpenTelemetry metrics, tracing helpers, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed via
// a Prometheus exporter bridge set up in [InitProvider]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with their own [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all Moyeo metrics.
const meterName = "github.com/moyeo-ai/moyeo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks time from audio submission to final transcript.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency per sentence.
	TTSDuration metric.Float64Histogram

	// SummarizeDuration tracks topic segment summarization latency.
	SummarizeDuration metric.Float64Histogram

	// AgentRunDuration tracks end-to-end orchestration graph runs.
	AgentRunDuration metric.Float64Histogram

	// WorkerStartDuration tracks worker launch time from request to running.
	WorkerStartDuration metric.Float64Histogram

	// WakeWordLatency tracks time from wake-word detection to the first
	// answer event of the resulting agent run.
	WakeWordLatency metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts transcript utterances appended per meeting.
	Utterances metric.Int64Counter

	// TopicChanges counts detected topic boundaries.
	TopicChanges metric.Int64Counter

	// AgentRuns counts orchestration runs. Use with attributes:
	//   attribute.String("outcome", ...) — "success", "failed", "interrupted"
	AgentRuns metric.Int64Counter

	// ToolCalls counts agent tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// CredentialAllocations counts pool allocations by status
	// ("ok", "exhausted").
	CredentialAllocations metric.Int64Counter

	// SignalMessages counts signaling messages relayed by kind.
	SignalMessages metric.Int64Counter

	// ProviderErrors counts external provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveMeetings tracks meetings with a running worker.
	ActiveMeetings metric.Int64UpDownCounter

	// ActiveConnections tracks open signaling connections.
	ActiveConnections metric.Int64UpDownCounter

	// CredentialsInUse tracks allocated pool slots.
	CredentialsInUse metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// voice and LLM latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("moyeo.stt.duration",
		metric.WithDescription("Latency from audio submission to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("moyeo.tts.duration",
		metric.WithDescription("Latency of speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarizeDuration, err = m.Float64Histogram("moyeo.summarize.duration",
		metric.WithDescription("Latency of topic segment summarization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentRunDuration, err = m.Float64Histogram("moyeo.agent.run.duration",
		metric.WithDescription("End-to-end orchestration graph run latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WorkerStartDuration, err = m.Float64Histogram("moyeo.worker.start.duration",
		metric.WithDescription("Worker launch time from request to running."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WakeWordLatency, err = m.Float64Histogram("moyeo.wakeword.latency",
		metric.WithDescription("Time from wake-word detection to the first answer event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("moyeo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("moyeo.utterances",
		metric.WithDescription("Transcript utterances appended."),
	); err != nil {
		return nil, err
	}
	if met.TopicChanges, err = m.Int64Counter("moyeo.topic.changes",
		metric.WithDescription("Detected topic boundaries."),
	); err != nil {
		return nil, err
	}
	if met.AgentRuns, err = m.Int64Counter("moyeo.agent.runs",
		metric.WithDescription("Orchestration runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("moyeo.tool.calls",
		metric.WithDescription("Agent tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.CredentialAllocations, err = m.Int64Counter("moyeo.credential.allocations",
		metric.WithDescription("Credential pool allocations by status."),
	); err != nil {
		return nil, err
	}
	if met.SignalMessages, err = m.Int64Counter("moyeo.signal.messages",
		metric.WithDescription("Signaling messages relayed by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("moyeo.provider.errors",
		metric.WithDescription("External provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveMeetings, err = m.Int64UpDownCounter("moyeo.active_meetings",
		metric.WithDescription("Meetings with a running worker."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("moyeo.active_connections",
		metric.WithDescription("Open signaling connections."),
	); err != nil {
		return nil, err
	}
	if met.CredentialsInUse, err = m.Int64UpDownCounter("moyeo.credentials_in_use",
		metric.WithDescription("Allocated credential pool slots."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAgentRun records one orchestration run with its outcome.
func (m *Metrics) RecordAgentRun(ctx context.Context, outcome string) {
	m.AgentRuns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordToolCall records one agent tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordCredentialAllocation records one pool allocation attempt.
func (m *Metrics) RecordCredentialAllocation(ctx context.Context, status string) {
	m.CredentialAllocations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError records one external provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
