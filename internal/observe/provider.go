package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "voice-interview"

// ProviderConfig configures the telemetry installed by [InitProvider].
type ProviderConfig struct {
	// ServiceName defaults to "voice-interview".
	ServiceName    string
	ServiceVersion string

	// InstanceID distinguishes interview processes running side by side,
	// typically the session ID.
	InstanceID string

	// TraceExporter receives finished turn and stage spans. When nil, spans
	// are sampled and recorded but never leave the process.
	TraceExporter sdktrace.SpanExporter

	// SampleRatio is the fraction of root spans sampled, in (0, 1]. Zero
	// samples every turn.
	SampleRatio float64

	// Registry receives the Prometheus collectors. When nil the process-wide
	// default registry is used, which is what [MetricsHandler] serves.
	Registry *prometheus.Registry
}

// InitProvider installs a global meter provider exporting to Prometheus and a
// global tracer provider. The returned function flushes both; call it once
// the interview has ended.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	mp, err := newMeterProvider(res, cfg.Registry)
	if err != nil {
		return nil, err
	}
	tp := newTracerProvider(res, cfg)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		// Spans first: the batcher may still record metrics while draining.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(cfg.InstanceID)))
	}
	own, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), own)
}

func newMeterProvider(res *resource.Resource, reg *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	var opts []promexporter.Option
	if reg != nil {
		opts = append(opts, promexporter.WithRegisterer(reg))
	}
	exp, err := promexporter.New(opts...)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	), nil
}

func newTracerProvider(res *resource.Resource, cfg ProviderConfig) *sdktrace.TracerProvider {
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RegistryHandler serves reg, for processes that pass their own registry in
// [ProviderConfig].
func RegistryHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
