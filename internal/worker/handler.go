package worker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	aggdomain "github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/observability/logger"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
)

// Handler executes one job kind. Side effects that must not outlive a lost
// lease are preceded by lease.Check.
type Handler interface {
	Kind() string
	Handle(ctx context.Context, job *jobdomain.Job, lease Lease) (jobdomain.Result, error)
}

type CredentialOpener interface {
	Open(sealed string) (string, error)
}

type ScrapeHandlerParams struct {
	fx.In

	Log        *zap.Logger `optional:"true"`
	Config     config.Config
	Opener     CredentialOpener
	Clients    billingdomain.ClientFactory
	Aggregator aggdomain.Aggregator
	Results    scrapeddatadomain.Service
	Clock      clock.Clock
}

// ScrapeHandler pulls a billing account's history, aggregates it and stores
// the result. Nothing is written unless aggregation fully succeeds.
type ScrapeHandler struct {
	log        *zap.Logger
	kind       string
	opener     CredentialOpener
	clients    billingdomain.ClientFactory
	aggregator aggdomain.Aggregator
	results    scrapeddatadomain.Service
	clock      clock.Clock
}

func NewScrapeHandler(p ScrapeHandlerParams) *ScrapeHandler {
	kind := strings.TrimSpace(p.Config.Queue.JobName)
	if kind == "" {
		kind = config.DefaultJobName
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &ScrapeHandler{
		log:        log.Named("worker.scrape"),
		kind:       kind,
		opener:     p.Opener,
		clients:    p.Clients,
		aggregator: p.Aggregator,
		results:    p.Results,
		clock:      p.Clock,
	}
}

func (h *ScrapeHandler) Kind() string {
	return h.kind
}

func (h *ScrapeHandler) Handle(ctx context.Context, job *jobdomain.Job, lease Lease) (jobdomain.Result, error) {
	credential, err := h.opener.Open(job.Payload.SealedCredential)
	if err != nil {
		return jobdomain.Result{}, fmt.Errorf("open credential: %w", err)
	}
	logger.WithContext(ctx, h.log).Debug("worker.credential.opened",
		zap.String("stripe_key", logger.MaskStripeKey(credential)),
	)

	client, err := h.clients.NewClient(credential)
	if err != nil {
		return jobdomain.Result{}, err
	}

	metrics, err := h.aggregator.Aggregate(ctx, client, lease.Progress)
	if err != nil {
		return jobdomain.Result{}, err
	}

	if err := lease.Check(ctx); err != nil {
		return jobdomain.Result{}, err
	}

	record, err := h.results.Save(ctx, scrapeddatadomain.SaveRequest{
		OwnerID:    job.OwnerID,
		JobID:      job.ID,
		Metrics:    *metrics,
		FinishedAt: h.clock.Now(),
	})
	if err != nil {
		return jobdomain.Result{}, fmt.Errorf("store result: %w", err)
	}
	return jobdomain.Result{RecordID: record.ID}, nil
}
