package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/job/jobtest"
)

func enqueue(t *testing.T, q *jobtest.Queue, owner string) string {
	t.Helper()
	id := jobdomain.NewJobID("stripe-scrape", owner).String()
	_, err := q.Enqueue(context.Background(), jobdomain.Job{ID: id, Kind: "stripe-scrape", OwnerID: owner}, jobdomain.DefaultOptions())
	require.NoError(t, err)
	return id
}

func TestCleanRemovesFinishedAndDrainsWaiting(t *testing.T) {
	ctx := context.Background()
	q := jobtest.NewQueue()

	done := enqueue(t, q, "user_1")
	failed := enqueue(t, q, "user_1")
	enqueue(t, q, "user_2")
	enqueue(t, q, "user_3")

	leased, err := q.Lease(ctx, "test", 0)
	require.NoError(t, err)
	require.Equal(t, done, leased.ID)
	require.NoError(t, q.Complete(ctx, done, jobdomain.Result{RecordID: "rec"}))

	leased, err = q.Lease(ctx, "test", 0)
	require.NoError(t, err)
	require.Equal(t, failed, leased.ID)
	require.NoError(t, q.Fail(ctx, failed, "boom"))

	out, err := clean(ctx, q, options{limit: 1000, drain: true})
	require.NoError(t, err)
	require.Equal(t, 1, out.RemovedFailed)
	require.Equal(t, 1, out.RemovedCompleted)
	require.EqualValues(t, 2, out.Drained)
	require.Equal(t, jobdomain.Counts{}, out.Counts)
}

func TestCleanWithoutDrainKeepsWaiting(t *testing.T) {
	q := jobtest.NewQueue()
	enqueue(t, q, "user_1")

	out, err := clean(context.Background(), q, options{limit: 1000})
	require.NoError(t, err)
	require.Zero(t, out.Drained)
	require.EqualValues(t, 1, out.Counts.Waiting)
}
