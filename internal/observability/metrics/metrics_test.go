package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("owner_id", "user_1"),
		attribute.String("job_id", "stripe-scrape:user_1:abc"),
		attribute.String("resource", "charges"),
	)
	require.Len(t, attrs, 1)
	require.Equal(t, attribute.Key("resource"), attrs[0].Key)
}

func TestRecordRecordsProcessed(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "revenuepulse"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRecordsProcessed(ctx, "charges", 3)
	m.RecordRecordsProcessed(ctx, "charges", 2)
	m.RecordRecordsProcessed(ctx, "refunds", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "revenuepulse_aggregation_records_total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}
	require.Equal(t, int64(5), total)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordJobSubmitted(context.Background(), "stripe-scrape")
	m.RecordResultStored(context.Background())
}
