package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
)

func TestMiddleware(t *testing.T) {
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)
	logs := captureLogs(t)

	var seenCID string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(seenCID) != 32 {
		t.Fatalf("handler saw correlation ID %q", seenCID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seenCID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seenCID)
	}
	if rec.Header().Get("Traceparent") == "" {
		t.Error("traceparent header was not injected")
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /readyz" {
		t.Fatalf("spans = %+v", spans)
	}
	var status int64
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusServiceUnavailable {
		t.Errorf("span status attribute = %d, want 503", status)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error for a 5xx", spans[0].Status)
	}

	if got := histogramCount(t, collect(t, reader), "interview.http.request.duration"); got != 1 {
		t.Errorf("http duration samples = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), "path=/readyz") {
		t.Errorf("request was not logged: %s", logs.String())
	}
}

func TestMiddleware_PropagatesIncomingTrace(t *testing.T) {
	useTestTracer(t)
	m, _ := newTestMetrics(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(context.Background())
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != traceID {
		t.Errorf("trace ID = %q, want %q", seen, traceID)
	}
}
