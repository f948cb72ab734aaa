// Package observe provides the observability primitives shared by the
// orchestrator and its providers: OpenTelemetry metrics, tracing, trace-aware
// logging and an HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus by the exporter bridge installed in [InitProvider]. Tests should
// use [NewMetrics] with their own [metric.MeterProvider]; production code can
// use [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/jarvis"

// Metrics holds every metric instrument of the application. The OTel
// instruments are safe for concurrent use.
type Metrics struct {
	// --- Wake listener ---

	// WakeDetections counts wake events emitted by the listener or triggered
	// externally. Attribute: source.
	WakeDetections metric.Int64Counter

	// WakeDropped counts wake events ignored because the orchestrator was
	// not idle. Attribute: state.
	WakeDropped metric.Int64Counter

	// ListenerRetries counts listener restart attempts after a device fault.
	// Attribute: status.
	ListenerRetries metric.Int64Counter

	// --- Device lease ---

	// LeaseAcquisitions counts Acquire calls. Attributes: owner, status
	// (ok, busy, fault).
	LeaseAcquisitions metric.Int64Counter

	// --- Recognition ---

	// RecognitionDuration tracks the wall time of a recognition session.
	RecognitionDuration metric.Float64Histogram

	// RecognitionResults counts finished sessions. Attribute: outcome
	// (final, timeout, cancelled, error).
	RecognitionResults metric.Int64Counter

	// --- Dispatch ---

	// Dispatches counts dispatch outcomes. Attributes: command, status.
	Dispatches metric.Int64Counter

	// DispatchDuration tracks command handler latency.
	DispatchDuration metric.Float64Histogram

	// StateTransitions counts orchestrator transitions. Attributes: from, to.
	StateTransitions metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// STTDuration tracks the latency of one transcription.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks the latency of one synthesis.
	TTSDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control API latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bounds in seconds for voice interaction
// latencies, from a single inference up to a full recognition window.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.WakeDetections, "jarvis.wake.detections", "Wake events by source."},
		{&met.WakeDropped, "jarvis.wake.dropped", "Wake events dropped while not idle."},
		{&met.ListenerRetries, "jarvis.listener.retries", "Listener restart attempts after device faults."},
		{&met.LeaseAcquisitions, "jarvis.lease.acquisitions", "Device lease acquisitions by owner and status."},
		{&met.RecognitionResults, "jarvis.recognition.results", "Recognition sessions by outcome."},
		{&met.Dispatches, "jarvis.dispatches", "Dispatch outcomes by command and status."},
		{&met.StateTransitions, "jarvis.state.transitions", "Orchestrator state transitions."},
		{&met.ProviderRequests, "jarvis.provider.requests", "Provider requests by provider, kind, and status."},
		{&met.ProviderErrors, "jarvis.provider.errors", "Provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.RecognitionDuration, "jarvis.recognition.duration", "Wall time of recognition sessions."},
		{&met.DispatchDuration, "jarvis.dispatch.duration", "Latency of command handlers."},
		{&met.STTDuration, "jarvis.stt.duration", "Latency of speech-to-text transcription."},
		{&met.TTSDuration, "jarvis.tts.duration", "Latency of text-to-speech synthesis."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on
// [otel.GetMeterProvider]. Panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordWake counts a wake event from source.
func (m *Metrics) RecordWake(ctx context.Context, source string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(Attr("source", source)))
}

// RecordWakeDropped counts a wake event ignored in state.
func (m *Metrics) RecordWakeDropped(ctx context.Context, state string) {
	m.WakeDropped.Add(ctx, 1, metric.WithAttributes(Attr("state", state)))
}

// RecordListenerRetry counts one listener restart attempt.
func (m *Metrics) RecordListenerRetry(ctx context.Context, status string) {
	m.ListenerRetries.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordLease counts one Acquire call.
func (m *Metrics) RecordLease(ctx context.Context, owner, status string) {
	m.LeaseAcquisitions.Add(ctx, 1, metric.WithAttributes(
		Attr("owner", owner),
		Attr("status", status),
	))
}

// RecordRecognition records a finished recognition session.
func (m *Metrics) RecordRecognition(ctx context.Context, outcome string, d time.Duration) {
	m.RecognitionResults.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
	m.RecognitionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordDispatch records a dispatch outcome. d may be zero for fallbacks.
func (m *Metrics) RecordDispatch(ctx context.Context, command, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("command", command), Attr("status", status))
	m.Dispatches.Add(ctx, 1, attrs)
	if d > 0 {
		m.DispatchDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordTransition counts a state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(Attr("from", from), Attr("to", to)))
}

// RecordProviderRequest counts a provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordProviderError counts a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}
