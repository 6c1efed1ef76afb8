package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("job.id", "stripe-scrape:u1:t"),
		attribute.String("stripe.credential", "sk_test_123"),
		attribute.String("api_key", "x"),
	)
	require.Len(t, attrs, 1)
	require.Equal(t, attribute.Key("job.id"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("invalid api key sk_test_123"))
	require.NotContains(t, err.Error(), "sk_test_123")
	require.Nil(t, SafeError(nil))
}

func TestInjectExtractMapRoundTripsSpanContext(t *testing.T) {
	SetPropagator()
	provider := sdktrace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer("test").Start(context.Background(), "submit")
	defer span.End()

	carrier := InjectMap(ctx)
	require.NotEmpty(t, carrier["traceparent"])

	extracted := ExtractMap(context.Background(), carrier)
	require.Equal(t, span.SpanContext().TraceID(), traceIDFrom(extracted))
}

func traceIDFrom(ctx context.Context) trace.TraceID {
	return trace.SpanContextFromContext(ctx).TraceID()
}
