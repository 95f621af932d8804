// Package observe provides the observability primitives of the interview
// service: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
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
const meterName = "github.com/vzynszice/voice-interview-system"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Pipeline latency ---

	// StageDuration tracks the wall time of one fallback execution, including
	// retries and failover. Attributes: stage, outcome.
	StageDuration metric.Float64Histogram

	// AttemptDuration tracks a single provider call. Attributes: stage,
	// provider, status.
	AttemptDuration metric.Float64Histogram

	// TurnDuration tracks a full turn from utterance to playback.
	// Attribute: status.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Attributes: provider, stage,
	// status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes: provider,
	// stage, kind (timeout, failure, circuit_open).
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns. Attribute: status.
	Turns metric.Int64Counter

	// Utterances counts segmenter output. Attribute: result (emitted, dropped).
	Utterances metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, state.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of interviews in progress.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider calls, which range from tens of milliseconds (local VAD/STT) to
// tens of seconds (a cold LLM).
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("interview.stage.duration",
		metric.WithDescription("Latency of a pipeline stage including retries and failover."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AttemptDuration, err = m.Float64Histogram("interview.provider.attempt.duration",
		metric.WithDescription("Latency of a single provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("interview.turn.duration",
		metric.WithDescription("Latency of a full interview turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("interview.provider.requests",
		metric.WithDescription("Total provider calls by provider, stage, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("interview.provider.errors",
		metric.WithDescription("Total failed provider calls by provider, stage, and kind."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("interview.turns",
		metric.WithDescription("Total finished turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("interview.utterances",
		metric.WithDescription("Segmented utterances by result."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("interview.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("interview.active_sessions",
		metric.WithDescription("Number of interviews in progress."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("interview.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt records one provider call with its latency.
func (m *Metrics) RecordAttempt(ctx context.Context, stage, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("stage", stage),
		attribute.String("status", status),
	)
	m.ProviderRequests.Add(ctx, 1, attrs)
	m.AttemptDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordProviderError records one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, stage, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records the outcome of one fallback execution.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordUtterance records a segmenter decision; result is "emitted" or
// "dropped".
func (m *Metrics) RecordUtterance(ctx context.Context, result string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
