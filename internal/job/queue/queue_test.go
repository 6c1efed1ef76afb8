package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
)

// newTestQueue needs a reachable Redis in REDIS_URL; every test gets its own
// namespace that is removed afterwards.
func newTestQueue(t *testing.T) (*Queue, *clock.FakeClock) {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	ns := "revenuepulse-test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, ns+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})

	clk := clock.NewFakeClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	return newQueue(client, ns, clk, zap.NewNop()), clk
}

func testJob(owner string) jobdomain.Job {
	id := jobdomain.NewJobID("stripe-scrape", owner)
	return jobdomain.Job{
		ID:      id.String(),
		Kind:    id.Kind,
		OwnerID: owner,
		Payload: jobdomain.Payload{SealedCredential: "sealed"},
	}
}

func TestEnqueueLeaseComplete(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	job := testJob("user_1")
	queued, err := q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateWaiting, queued.State)
	require.Equal(t, 1, queued.AttemptsAllowed)

	clk.Advance(time.Second)
	leased, err := q.Lease(ctx, "worker-1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, job.ID, leased.ID)
	require.Equal(t, jobdomain.StateActive, leased.State)
	require.Equal(t, 1, leased.AttemptsMade)
	require.NotNil(t, leased.ProcessedAt)
	require.Equal(t, "sealed", leased.Payload.SealedCredential)

	require.NoError(t, q.UpdateProgress(ctx, job.ID, 50))
	require.NoError(t, q.Complete(ctx, job.ID, jobdomain.Result{RecordID: "42"}))

	done, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateCompleted, done.State)
	require.Equal(t, 50, done.Progress)
	require.Equal(t, "42", done.Result.RecordID)
	require.NotNil(t, done.FinishedAt)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, counts.Waiting)
	require.EqualValues(t, 0, counts.Active)
	require.EqualValues(t, 1, counts.Completed)
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := testJob("user_1")
	_, err := q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	require.ErrorIs(t, err, jobdomain.ErrDuplicateJob)
}

func TestLeaseTimesOutEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Lease(context.Background(), "worker-1", 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestTerminalJobsRejectTransitions(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := testJob("user_1")
	_, err := q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	require.NoError(t, err)

	require.ErrorIs(t, q.Complete(ctx, job.ID, jobdomain.Result{}), jobdomain.ErrInvalidTransition)

	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "invalid_credential"))

	require.ErrorIs(t, q.Complete(ctx, job.ID, jobdomain.Result{RecordID: "1"}), jobdomain.ErrInvalidTransition)
	require.ErrorIs(t, q.UpdateProgress(ctx, job.ID, 100), jobdomain.ErrInvalidTransition)
	require.ErrorIs(t, q.Fail(ctx, "stripe-scrape:nobody:missing", "x"), jobdomain.ErrJobNotFound)

	failed, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateFailed, failed.State)
	require.Equal(t, "invalid_credential", failed.FailedReason)
	require.Nil(t, failed.Result)
}

func TestCompletedRetentionByCount(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	opts := jobdomain.DefaultOptions()
	opts.RemoveOnComplete = jobdomain.Retention{Count: 2}

	var ids []string
	for i := 0; i < 3; i++ {
		job := testJob("user_1")
		ids = append(ids, job.ID)
		_, err := q.Enqueue(ctx, job, opts)
		require.NoError(t, err)
		_, err = q.Lease(ctx, "worker-1", 0)
		require.NoError(t, err)
		clk.Advance(time.Second)
		require.NoError(t, q.Complete(ctx, job.ID, jobdomain.Result{RecordID: "r"}))
	}

	_, err := q.Get(ctx, ids[0])
	require.ErrorIs(t, err, jobdomain.ErrJobNotFound)
	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Completed)
}

func TestFailedRetentionByAge(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	old := testJob("user_1")
	_, err := q.Enqueue(ctx, old, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, old.ID, "boom"))

	clk.Advance(25 * time.Hour)

	fresh := testJob("user_1")
	_, err = q.Enqueue(ctx, fresh, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, fresh.ID, "boom"))

	_, err = q.Get(ctx, old.ID)
	require.ErrorIs(t, err, jobdomain.ErrJobNotFound)
	_, err = q.Get(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestCleanAndDrain(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	failed := testJob("user_1")
	_, err := q.Enqueue(ctx, failed, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, failed.ID, "boom"))

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, testJob("user_2"), jobdomain.DefaultOptions())
		require.NoError(t, err)
	}

	removed, err := q.Clean(ctx, jobdomain.StateFailed, 0, 1000)
	require.NoError(t, err)
	require.Equal(t, []string{failed.ID}, removed)

	drained, err := q.Drain(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, drained)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, jobdomain.Counts{}, counts)

	_, err = q.Clean(ctx, jobdomain.StateWaiting, 0, 10)
	require.ErrorIs(t, err, ErrUnsupportedCleanState)
}

func TestStalledListsOldLeases(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	old := testJob("user_1")
	_, err := q.Enqueue(ctx, old, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)

	recent := testJob("user_1")
	_, err = q.Enqueue(ctx, recent, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)

	stalled, err := q.Stalled(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, []string{old.ID}, stalled)

	require.NoError(t, q.Fail(ctx, old.ID, jobdomain.ErrJobStalled.Error()))
	stalled, err = q.Stalled(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Empty(t, stalled)
}

func TestHeartbeatDefersStall(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	job := testJob("user_1")
	_, err := q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	require.NoError(t, err)
	_, err = q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	require.NoError(t, q.Heartbeat(ctx, job.ID))
	clk.Advance(10 * time.Minute)

	stalled, err := q.Stalled(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Empty(t, stalled)

	clk.Advance(10 * time.Minute)
	require.NoError(t, q.UpdateProgress(ctx, job.ID, 25))
	stalled, err = q.Stalled(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Empty(t, stalled)

	clk.Advance(16 * time.Minute)
	stalled, err = q.Stalled(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, []string{job.ID}, stalled)

	require.NoError(t, q.Fail(ctx, job.ID, jobdomain.ErrJobStalled.Error()))
	require.ErrorIs(t, q.Heartbeat(ctx, job.ID), jobdomain.ErrInvalidTransition)
	require.ErrorIs(t, q.Heartbeat(ctx, "stripe-scrape:nobody:missing"), jobdomain.ErrJobNotFound)
}

func TestLeaseDropsIDsThatAreNoLongerWaiting(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	stale := testJob("user_1")
	_, err := q.Enqueue(ctx, stale, jobdomain.DefaultOptions())
	require.NoError(t, err)
	live := testJob("user_2")
	_, err = q.Enqueue(ctx, live, jobdomain.DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, q.client.HSet(ctx, q.jobKey(stale.ID), fieldState, string(jobdomain.StateFailed)).Err())

	leased, err := q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, live.ID, leased.ID)
	require.NotNil(t, leased.ProcessedAt)
	require.NotNil(t, leased.HeartbeatAt)

	active, err := q.client.LRange(ctx, q.key(keyActive), 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{live.ID}, active)

	next, err := q.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestLeaseWaitsForLateJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := testJob("user_1")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = q.Enqueue(ctx, job, jobdomain.DefaultOptions())
	}()

	leased, err := q.Lease(ctx, "worker-1", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, job.ID, leased.ID)
}
