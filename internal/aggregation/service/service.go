package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	aggdomain "github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/observability/tracing"
)

const (
	resourceCharges       = "charges"
	resourceRefunds       = "refunds"
	resourceInvoices      = "invoices"
	resourceSubscriptions = "subscriptions"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	metrics  *metrics.Metrics
	pageSize int
	tracer   trace.Tracer
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("aggregation"),
		clock:    p.Clock,
		metrics:  p.Metrics,
		pageSize: p.Config.Stripe.PageSize,
		tracer:   otel.Tracer("revenuepulse/aggregation"),
	}
}

// Aggregate streams charges, refunds, invoices and subscriptions in that
// order. Window anchors are fixed when the call starts.
func (s *Service) Aggregate(ctx context.Context, client billingdomain.Client, progress aggdomain.ProgressFunc) (*aggdomain.MetricsResult, error) {
	ctx, span := s.tracer.Start(ctx, "aggregation.run")
	defer span.End()

	acc := newAccumulator(s.clock.Now())
	report := func(percent int) {
		if progress != nil {
			progress(ctx, percent)
		}
	}

	err := runStream(ctx, s, resourceCharges, client.ListCharges,
		func(c billingdomain.Charge) string { return c.ID }, acc.addCharges)
	if err != nil {
		return nil, s.abort(span, err)
	}
	report(25)

	err = runStream(ctx, s, resourceRefunds, client.ListRefunds,
		func(r billingdomain.Refund) string { return r.ID }, acc.addRefunds)
	if err != nil {
		return nil, s.abort(span, err)
	}
	report(50)

	err = runStream(ctx, s, resourceInvoices, client.ListInvoices,
		func(i billingdomain.Invoice) string { return i.ID }, acc.addInvoices)
	if err != nil {
		return nil, s.abort(span, err)
	}
	report(75)

	err = runStream(ctx, s, resourceSubscriptions, client.ListSubscriptions,
		func(sub billingdomain.Subscription) string { return sub.ID }, acc.addSubscriptions)
	if err != nil {
		return nil, s.abort(span, err)
	}

	result := acc.result(s.clock.Now())
	report(100)

	span.SetAttributes(
		attribute.Int64("aggregation.gross_sales_total", result.Totals.GrossSalesTotal),
		attribute.Int64("aggregation.mrr_total", result.MRR.Total),
		attribute.String("aggregation.currency", result.Currency),
	)
	s.log.Debug("aggregation.finished",
		zap.String("currency", result.Currency),
		zap.Int("charges", result.RawCounts.Charges),
		zap.Int("refunds", result.RawCounts.Refunds),
		zap.Int("invoices", result.RawCounts.Invoices),
		zap.Int("subscriptions", result.RawCounts.Subscriptions),
	)
	return result, nil
}

func (s *Service) abort(span trace.Span, err error) error {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "aggregation failed")
	return err
}

// runStream pages through one resource and feeds every record to visit.
func runStream[T any](
	ctx context.Context,
	s *Service,
	resource string,
	list billingdomain.ListFunc[T],
	id func(T) string,
	visit func([]T),
) error {
	ctx, span := s.tracer.Start(ctx, "aggregation."+resource)
	defer span.End()

	seen := 0
	err := billingdomain.Paginate(ctx, s.pageSize, list, id, func(page []T) error {
		seen += len(page)
		visit(page)
		return nil
	})
	span.SetAttributes(attribute.Int("records", seen))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "list failed")
		return fmt.Errorf("aggregate %s: %w", resource, err)
	}

	if s.metrics != nil {
		s.metrics.RecordRecordsProcessed(ctx, resource, seen)
	}
	return nil
}

var _ aggdomain.Aggregator = (*Service)(nil)
