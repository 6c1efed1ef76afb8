package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/job/jobtest"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata/repository"
	scrapeddataservice "github.com/smallbiznis/revenuepulse/internal/scrapeddata/service"
	"github.com/smallbiznis/revenuepulse/internal/secret"
	"github.com/smallbiznis/revenuepulse/internal/submission/domain"
	"github.com/smallbiznis/revenuepulse/pkg/db"
)

type stubLimiter struct {
	result *ratelimit.RateLimitResult
	err    error
	calls  int
}

func (l *stubLimiter) AllowOwner(context.Context, string) (*ratelimit.RateLimitResult, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if l.result == nil {
		return &ratelimit.RateLimitResult{Allowed: true}, nil
	}
	return l.result, nil
}

type fixture struct {
	svc     domain.Service
	queue   *jobtest.Queue
	sealer  *secret.Sealer
	limiter *stubLimiter
	results scrapeddatadomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&scrapeddatadomain.ScrapedDataRecord{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	results := scrapeddataservice.New(scrapeddataservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.SystemClock{},
	})

	cfg := config.Config{}
	cfg.Queue.JobName = "stripe-scrape"
	cfg.Queue.RemoveOnCompleteAge = time.Hour
	cfg.Queue.RemoveOnCompleteCount = 1000
	cfg.Queue.RemoveOnFailAge = 24 * time.Hour

	f := &fixture{
		queue:   jobtest.NewQueue(),
		sealer:  secret.NewSealerFromKey("submission-test"),
		limiter: &stubLimiter{},
		results: results,
	}
	f.svc = New(Params{
		Log:     zap.NewNop(),
		Config:  cfg,
		Queue:   f.queue,
		Sealer:  f.sealer,
		Limiter: f.limiter,
		Results: results,
	})
	return f
}

func TestSubmitEnqueuesSealedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, "user_1", "  sk_test_abc  ")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "stripe-scrape:user_1:"))

	parsed, err := jobdomain.ParseJobID(id)
	require.NoError(t, err)
	require.Equal(t, "user_1", parsed.OwnerID)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateWaiting, job.State)
	require.Equal(t, 1, job.AttemptsAllowed)
	require.NotContains(t, job.Payload.SealedCredential, "sk_test_abc")
	require.Equal(t, time.Hour, job.Options.RemoveOnComplete.Age)
	require.Equal(t, 1000, job.Options.RemoveOnComplete.Count)
	require.Equal(t, 24*time.Hour, job.Options.RemoveOnFail.Age)

	plain, err := f.sealer.Open(job.Payload.SealedCredential)
	require.NoError(t, err)
	require.Equal(t, "sk_test_abc", plain)
}

func TestSubmitGeneratesDistinctIDs(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Submit(context.Background(), "user_1", "sk_test_abc")
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), "user_1", "sk_test_abc")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestSubmitRejectsMissingCredential(t *testing.T) {
	f := newFixture(t)
	for _, credential := range []string{"", "   "} {
		_, err := f.svc.Submit(context.Background(), "user_1", credential)
		require.ErrorIs(t, err, domain.ErrMissingCredential)
	}
	require.Zero(t, f.limiter.calls)

	counts, err := f.queue.Counts(context.Background())
	require.NoError(t, err)
	require.Zero(t, counts.Waiting)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.result = &ratelimit.RateLimitResult{Allowed: false, RetryAfter: 7 * time.Second}

	_, err := f.svc.Submit(context.Background(), "user_1", "sk_test_abc")
	require.ErrorIs(t, err, domain.ErrRateLimited)

	var limited *domain.RateLimitedError
	require.True(t, errors.As(err, &limited))
	require.Equal(t, 7*time.Second, limited.RetryAfter)

	counts, err := f.queue.Counts(context.Background())
	require.NoError(t, err)
	require.Zero(t, counts.Waiting)
}

func TestSubmitLimiterUnavailable(t *testing.T) {
	f := newFixture(t)
	f.limiter.err = ratelimit.ErrLimiterUnavailable

	_, err := f.svc.Submit(context.Background(), "user_1", "sk_test_abc")
	require.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestSubmitEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	f.queue.EnqueueErr = errors.New("redis down")

	_, err := f.svc.Submit(context.Background(), "user_1", "sk_test_abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "enqueue job")
}

func TestStatusOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, "user_1", "sk_test_abc")
	require.NoError(t, err)

	view, err := f.svc.Status(ctx, "user_1", id)
	require.NoError(t, err)
	require.Equal(t, id, view.ID)
	require.Equal(t, jobdomain.StateWaiting, view.State)
	require.Nil(t, view.Result)
	require.Nil(t, view.FailedReason)
	require.Equal(t, 1, view.AttemptsTotal)

	_, err = f.svc.Status(ctx, "user_2", id)
	require.ErrorIs(t, err, domain.ErrForbidden)

	// A prefix of the real owner must not match.
	_, err = f.svc.Status(ctx, "user", id)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Status(ctx, "user_1", "not-a-job-id")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestStatusMalformedTokenOfCallerIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Status(ctx, "user_1", "stripe-scrape:user_1:abc")
	require.ErrorIs(t, err, jobdomain.ErrJobNotFound)

	_, err = f.svc.Status(ctx, "user_1", "stripe-scrape:user_2:abc")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t)
	id := jobdomain.NewJobID("stripe-scrape", "user_1").String()

	_, err := f.svc.Status(context.Background(), "user_1", id)
	require.ErrorIs(t, err, jobdomain.ErrJobNotFound)
}

func TestStatusExposesResultOnlyWhenCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done, err := f.svc.Submit(ctx, "user_1", "sk_test_abc")
	require.NoError(t, err)
	failed, err := f.svc.Submit(ctx, "user_1", "sk_test_abc")
	require.NoError(t, err)

	leased, err := f.queue.Lease(ctx, "test", 0)
	require.NoError(t, err)
	require.Equal(t, done, leased.ID)
	require.NoError(t, f.queue.UpdateProgress(ctx, done, 100))
	require.NoError(t, f.queue.Complete(ctx, done, jobdomain.Result{RecordID: "rec_1"}))

	leased, err = f.queue.Lease(ctx, "test", 0)
	require.NoError(t, err)
	require.Equal(t, failed, leased.ID)
	require.NoError(t, f.queue.Fail(ctx, failed, "aggregate charges: invalid_credential"))

	view, err := f.svc.Status(ctx, "user_1", done)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateCompleted, view.State)
	require.Equal(t, 100, view.Progress)
	require.Equal(t, &jobdomain.Result{RecordID: "rec_1"}, view.Result)
	require.Equal(t, 1, view.AttemptsMade)

	view, err = f.svc.Status(ctx, "user_1", failed)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateFailed, view.State)
	require.Nil(t, view.Result)
	require.NotNil(t, view.FailedReason)
	require.Equal(t, "aggregate charges: invalid_credential", *view.FailedReason)
}

func TestResultsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.results.Save(ctx, scrapeddatadomain.SaveRequest{OwnerID: "user_1", JobID: "stripe-scrape:user_1:a"})
	require.NoError(t, err)
	_, err = f.results.Save(ctx, scrapeddatadomain.SaveRequest{OwnerID: "user_2", JobID: "stripe-scrape:user_2:b"})
	require.NoError(t, err)

	records, err := f.svc.ListResults(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "stripe-scrape:user_1:a", records[0].JobID)

	record, err := f.svc.GetResult(ctx, "user_1", "stripe-scrape:user_1:a")
	require.NoError(t, err)
	require.Equal(t, "user_1", record.OwnerID)

	_, err = f.svc.GetResult(ctx, "user_1", "stripe-scrape:user_2:b")
	require.ErrorIs(t, err, scrapeddatadomain.ErrNotFound)

	_, err = f.svc.GetResult(ctx, "user_1", " ")
	require.ErrorIs(t, err, scrapeddatadomain.ErrNotFound)

	_, err = f.svc.ListResults(ctx, "")
	require.ErrorIs(t, err, domain.ErrForbidden)
}
