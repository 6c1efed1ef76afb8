package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/pkg/telemetry/correlation"
)

// Config arrives normalised: Protocol is "grpc" or "http" and Sampling is
// within (0, 1].
type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	Endpoint    string
	Protocol    string
	Sampling    float64
}

// NewProvider installs the global tracer provider and returns nil when
// tracing is off. Every span carries the correlation id of its context.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	SetPropagator()
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return nil, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Sampling))),
		sdktrace.WithSpanProcessor(correlation.NewSpanProcessor()),
	)
	otel.SetTracerProvider(provider)
	lc.Append(fx.StopHook(provider.Shutdown))

	log.Info("tracing.ready",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Float64("sampling", cfg.Sampling),
	)
	return provider, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()
	if cfg.Protocol == "http" {
		return otlptracehttp.New(ctx, otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(cfg.Endpoint))
}
