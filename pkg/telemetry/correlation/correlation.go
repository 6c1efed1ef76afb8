package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const AttributeKey = "correlation_id"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating
// a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// NewSpanProcessor tags every span started under a correlated context.
func NewSpanProcessor() sdktrace.SpanProcessor {
	return spanProcessor{}
}

type spanProcessor struct{}

func (spanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		s.SetAttributes(attribute.String(AttributeKey, cid))
	}
}

func (spanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (spanProcessor) Shutdown(context.Context) error { return nil }

func (spanProcessor) ForceFlush(context.Context) error { return nil }
