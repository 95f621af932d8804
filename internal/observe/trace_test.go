package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs a TracerProvider with an in-memory exporter as the
// global provider for the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_EndSpan(t *testing.T) {
	exp := useTestTracer(t)

	ctx, span := StartSpan(context.Background(), "stage.transcribe")
	if cid := CorrelationID(ctx); len(cid) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex chars", cid)
	}
	EndSpan(span, errors.New("all providers failed"), Attr("stage", "transcribe"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "stage.transcribe" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status.Code)
	}
	if len(s.Events) == 0 || s.Events[0].Name != "exception" {
		t.Errorf("error was not recorded as an event: %+v", s.Events)
	}
	found := false
	for _, kv := range s.Attributes {
		if kv.Key == "stage" && kv.Value.AsString() == "transcribe" {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v, want stage=transcribe", s.Attributes)
	}
}

func TestEndSpan_Success(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "ok")
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code == codes.Error {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	ctx, span := StartSpan(context.Background(), "log-test")
	defer span.End()

	Logger(ctx).Info("turn completed")

	logged := buf.String()
	if !strings.Contains(logged, "trace_id=") || !strings.Contains(logged, "span_id=") {
		t.Errorf("log output missing trace attributes: %s", logged)
	}
}

func TestLogger_NoSpan(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("turn completed")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log output should not contain trace_id: %s", buf.String())
	}
}
