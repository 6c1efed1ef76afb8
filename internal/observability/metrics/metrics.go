package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	jobsSubmitted      metric.Int64Counter
	submissionsDenied  metric.Int64Counter
	resourcesProcessed metric.Int64Counter
	resultsStored      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "revenuepulse"
	}
	meter := provider.Meter(name)

	jobsSubmitted, err := meter.Int64Counter("revenuepulse_jobs_submitted_total")
	if err != nil {
		return nil, err
	}
	submissionsDenied, err := meter.Int64Counter("revenuepulse_submissions_denied_total")
	if err != nil {
		return nil, err
	}
	resourcesProcessed, err := meter.Int64Counter("revenuepulse_aggregation_records_total")
	if err != nil {
		return nil, err
	}
	resultsStored, err := meter.Int64Counter("revenuepulse_results_stored_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		jobsSubmitted:      jobsSubmitted,
		submissionsDenied:  submissionsDenied,
		resourcesProcessed: resourcesProcessed,
		resultsStored:      resultsStored,
	}, nil
}

func (m *Metrics) RecordJobSubmitted(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("job_kind", strings.TrimSpace(kind)))
	m.jobsSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSubmissionDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.submissionsDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecordsProcessed counts provider records consumed by an aggregation.
func (m *Metrics) RecordRecordsProcessed(ctx context.Context, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", strings.TrimSpace(resource)))
	m.resourcesProcessed.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordResultStored(ctx context.Context) {
	if m == nil {
		return
	}
	m.resultsStored.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	if protocol == "http" {
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithInsecure(), otlpmetrichttp.WithEndpoint(endpoint))
	}
	return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithInsecure(), otlpmetricgrpc.WithEndpoint(endpoint))
}

// Owner and job ids are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"job_kind":    {},
	"resource":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
