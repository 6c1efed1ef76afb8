package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/observability/logger"
	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/observability/tracing"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	"github.com/smallbiznis/revenuepulse/internal/submission/domain"
)

type Sealer interface {
	Seal(plaintext string) (string, error)
}

type Limiter interface {
	AllowOwner(ctx context.Context, ownerID string) (*ratelimit.RateLimitResult, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Queue    jobdomain.Queue
	Sealer   Sealer
	Limiter  Limiter
	Results  scrapeddatadomain.Service
	Pipeline *config.PipelineConfigHolder `optional:"true"`
	Metrics  *metrics.Metrics             `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	kind     string
	queue    jobdomain.Queue
	sealer   Sealer
	limiter  Limiter
	results  scrapeddatadomain.Service
	pipeline *config.PipelineConfigHolder
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	kind := strings.TrimSpace(p.Config.Queue.JobName)
	if kind == "" {
		kind = config.DefaultJobName
	}
	pipeline := p.Pipeline
	if pipeline == nil {
		pipeline = config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig(p.Config))
	}
	return &Service{
		log:      p.Log.Named("submission.service"),
		kind:     kind,
		queue:    p.Queue,
		sealer:   p.Sealer,
		limiter:  p.Limiter,
		results:  p.Results,
		pipeline: pipeline,
		metrics:  p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, ownerID, credential string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", domain.ErrForbidden
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", domain.ErrMissingCredential
	}
	log := logger.WithContext(ctx, s.log)

	if s.limiter != nil {
		res, err := s.limiter.AllowOwner(ctx, ownerID)
		if err != nil {
			log.Warn("submission rate limit check failed", zap.Error(err))
			return "", fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		if !res.Allowed {
			s.metrics.RecordSubmissionDenied(ctx, "rate_limited")
			log.Info("submission rate limited", zap.Duration("retry_after", res.RetryAfter))
			return "", &domain.RateLimitedError{RetryAfter: res.RetryAfter}
		}
	}

	sealed, err := s.sealer.Seal(credential)
	if err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}

	id := jobdomain.NewJobID(s.kind, ownerID)
	job, err := s.queue.Enqueue(ctx, jobdomain.Job{
		ID:      id.String(),
		Kind:    s.kind,
		OwnerID: ownerID,
		Payload: jobdomain.Payload{
			SealedCredential: sealed,
			Trace:            tracing.InjectMap(ctx),
		},
	}, s.jobOptions())
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.metrics.RecordJobSubmitted(ctx, s.kind)
	log.Info("submission.queued",
		zap.String("job_id", job.ID),
		zap.String("stripe_key", logger.MaskStripeKey(credential)),
	)
	return job.ID, nil
}

func (s *Service) jobOptions() jobdomain.Options {
	opts := jobdomain.DefaultOptions()
	retention := s.pipeline.Get()
	opts.RemoveOnComplete = jobdomain.Retention{
		Age:   retention.RemoveOnCompleteAge,
		Count: retention.RemoveOnCompleteCount,
	}
	opts.RemoveOnFail = jobdomain.Retention{Age: retention.RemoveOnFailAge}
	return opts
}

func (s *Service) Status(ctx context.Context, ownerID, jobID string) (*domain.StatusView, error) {
	parsed, err := jobdomain.ParseJobID(jobID)
	if parsed.OwnerID == "" || parsed.OwnerID != strings.TrimSpace(ownerID) {
		return nil, domain.ErrForbidden
	}
	if err != nil {
		// Names the caller but could never have been issued.
		return nil, jobdomain.ErrJobNotFound
	}

	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &domain.StatusView{
		ID:            job.ID,
		State:         job.State,
		Progress:      job.Progress,
		AttemptsMade:  job.AttemptsMade,
		AttemptsTotal: job.AttemptsAllowed,
	}
	if job.FailedReason != "" {
		reason := job.FailedReason
		view.FailedReason = &reason
	}
	if job.State == jobdomain.StateCompleted {
		view.Result = job.Result
	}
	return view, nil
}

func (s *Service) ListResults(ctx context.Context, ownerID string) ([]scrapeddatadomain.ScrapedDataRecord, error) {
	records, err := s.results.List(ctx, ownerID, scrapeddatadomain.MaxListLimit)
	if errors.Is(err, scrapeddatadomain.ErrInvalidOwner) {
		return nil, domain.ErrForbidden
	}
	return records, err
}

func (s *Service) GetResult(ctx context.Context, ownerID, jobID string) (*scrapeddatadomain.ScrapedDataRecord, error) {
	record, err := s.results.Get(ctx, ownerID, jobID)
	switch {
	case errors.Is(err, scrapeddatadomain.ErrInvalidOwner):
		return nil, domain.ErrForbidden
	case errors.Is(err, scrapeddatadomain.ErrInvalidJobID):
		return nil, scrapeddatadomain.ErrNotFound
	}
	return record, err
}
