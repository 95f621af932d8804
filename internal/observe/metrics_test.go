package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the data point of counter name whose
// attribute key equals value.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a histogram", name)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAttempt(ctx, "transcribe", "whisper", "ok", 120*time.Millisecond)
	m.RecordAttempt(ctx, "transcribe", "whisper", "ok", 80*time.Millisecond)
	m.RecordAttempt(ctx, "transcribe", "deepgram", "error", time.Second)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "interview.provider.requests", "provider", "whisper"); got != 2 {
		t.Errorf("whisper requests = %d, want 2", got)
	}
	if got := counterValue(t, rm, "interview.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := histogramCount(t, rm, "interview.provider.attempt.duration"); got != 3 {
		t.Errorf("attempt samples = %d, want 3", got)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "generate", "openai", "timeout")
	m.RecordProviderError(ctx, "generate", "openai", "circuit_open")
	m.RecordProviderError(ctx, "generate", "openai", "timeout")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "interview.provider.errors", "kind", "timeout"); got != 2 {
		t.Errorf("timeouts = %d, want 2", got)
	}
}

func TestRecordStageAndTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "synthesize", "ok", 300*time.Millisecond)
	m.RecordTurn(ctx, "succeeded", 4*time.Second)
	m.RecordTurn(ctx, "failed_fatal", time.Second)
	m.RecordTurn(ctx, "succeeded", 2*time.Second)

	rm := collect(t, reader)
	if got := histogramCount(t, rm, "interview.stage.duration"); got != 1 {
		t.Errorf("stage samples = %d, want 1", got)
	}
	if got := histogramCount(t, rm, "interview.turn.duration"); got != 3 {
		t.Errorf("turn samples = %d, want 3", got)
	}
	if got := counterValue(t, rm, "interview.turns", "status", "succeeded"); got != 2 {
		t.Errorf("succeeded turns = %d, want 2", got)
	}
}

func TestRecordUtteranceAndBreaker(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "emitted")
	m.RecordUtterance(ctx, "dropped")
	m.RecordUtterance(ctx, "dropped")
	m.RecordBreakerTransition(ctx, "elevenlabs", "open")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "interview.utterances", "result", "dropped"); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if got := counterValue(t, rm, "interview.breaker.transitions", "state", "open"); got != 1 {
		t.Errorf("open transitions = %d, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "interview.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a populated sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
