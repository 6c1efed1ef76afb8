package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/job/jobtest"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
)

var t0 = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeLocker struct {
	held bool
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.held {
		return ratelimit.ErrLockHeld
	}
	return fn(ctx)
}

type mockQueue struct {
	jobdomain.Queue
	mock.Mock
}

func (m *mockQueue) Stalled(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	args := m.Called(ctx, olderThan, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockQueue) Fail(ctx context.Context, id string, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

type fixture struct {
	queue *jobtest.Queue
	now   time.Time
	sched *Scheduler
}

func newFixture(t *testing.T, locker Locker, retention config.PipelineConfig) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{queue: jobtest.NewQueue(), now: t0}
	f.queue.SetNow(func() time.Time { return f.now })

	f.sched, err = New(Params{
		Log:      zap.NewNop(),
		Queue:    f.queue,
		Locker:   locker,
		Pipeline: config.NewStaticPipelineConfigHolder(retention),
		GenID:    node,
		Clock:    clock.NewFakeClock(t0),
		Config:   Config{StallThreshold: 15 * time.Minute, BatchSize: 10, LockKey: "revenuepulse:test:scheduler"},
		Metrics:  obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) leased(t *testing.T, owner string) string {
	t.Helper()
	ctx := context.Background()
	job, err := f.queue.Enqueue(ctx, jobdomain.Job{
		ID:      jobdomain.NewJobID(config.DefaultJobName, owner).String(),
		Kind:    config.DefaultJobName,
		OwnerID: owner,
	}, jobdomain.DefaultOptions())
	require.NoError(t, err)
	leased, err := f.queue.Lease(ctx, "worker-1", 0)
	require.NoError(t, err)
	require.Equal(t, job.ID, leased.ID)
	return job.ID
}

func TestRecoverStalledFailsOldLeasesOnly(t *testing.T) {
	f := newFixture(t, nil, config.PipelineConfig{})
	ctx := context.Background()

	stale := f.leased(t, "user_1")
	f.now = t0.Add(20 * time.Minute)
	fresh := f.leased(t, "user_2")

	recovered, err := f.sched.RecoverStalledJob(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	job, err := f.queue.Get(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateFailed, job.State)
	require.Contains(t, job.FailedReason, "job_stalled")

	job, err = f.queue.Get(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateActive, job.State)
}

func TestRecoverStalledSkipsJobsThatFinishedMeanwhile(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	queue := &mockQueue{}
	queue.On("Stalled", mock.Anything, 15*time.Minute, 10).Return([]string{"a", "b", "c"}, nil)
	queue.On("Fail", mock.Anything, "a", mock.Anything).Return(jobdomain.ErrInvalidTransition)
	queue.On("Fail", mock.Anything, "b", mock.Anything).Return(jobdomain.ErrJobNotFound)
	queue.On("Fail", mock.Anything, "c", mock.MatchedBy(func(reason string) bool {
		return strings.HasPrefix(reason, "job_stalled")
	})).Return(nil)

	sched, err := New(Params{
		Log:      zap.NewNop(),
		Queue:    queue,
		Pipeline: config.NewStaticPipelineConfigHolder(config.PipelineConfig{}),
		GenID:    node,
		Clock:    clock.NewFakeClock(t0),
		Config:   Config{StallThreshold: 15 * time.Minute, BatchSize: 10},
	})
	require.NoError(t, err)

	recovered, err := sched.RecoverStalledJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)
	queue.AssertExpectations(t)
}

func TestRecoverStalledStopsOnQueueError(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	boom := errors.New("redis down")
	queue := &mockQueue{}
	queue.On("Stalled", mock.Anything, mock.Anything, mock.Anything).Return([]string{"a", "b"}, nil)
	queue.On("Fail", mock.Anything, "a", mock.Anything).Return(boom)

	sched, err := New(Params{
		Log:      zap.NewNop(),
		Queue:    queue,
		Pipeline: config.NewStaticPipelineConfigHolder(config.PipelineConfig{}),
		GenID:    node,
		Clock:    clock.NewFakeClock(t0),
	})
	require.NoError(t, err)

	err = sched.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	queue.AssertNotCalled(t, "Fail", mock.Anything, "b", mock.Anything)
}

func TestCleanFinishedAppliesRetentionWindows(t *testing.T) {
	f := newFixture(t, nil, config.PipelineConfig{
		RemoveOnCompleteAge: time.Hour,
		RemoveOnFailAge:     24 * time.Hour,
	})
	ctx := context.Background()

	done := f.leased(t, "user_1")
	require.NoError(t, f.queue.Complete(ctx, done, jobdomain.Result{RecordID: "1"}))
	failed := f.leased(t, "user_1")
	require.NoError(t, f.queue.Fail(ctx, failed, "upstream_error"))

	f.now = t0.Add(2 * time.Hour)
	removed, err := f.sched.CleanFinishedJob(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = f.queue.Get(ctx, done)
	require.ErrorIs(t, err, jobdomain.ErrJobNotFound)
	_, err = f.queue.Get(ctx, failed)
	require.NoError(t, err)
}

func TestCleanFinishedZeroAgeKeepsEverything(t *testing.T) {
	f := newFixture(t, nil, config.PipelineConfig{})
	ctx := context.Background()

	done := f.leased(t, "user_1")
	require.NoError(t, f.queue.Complete(ctx, done, jobdomain.Result{RecordID: "1"}))
	f.now = t0.Add(48 * time.Hour)

	removed, err := f.sched.CleanFinishedJob(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestRunOnceTakesLock(t *testing.T) {
	locker := &fakeLocker{}
	f := newFixture(t, locker, config.PipelineConfig{})

	stale := f.leased(t, "user_1")
	f.now = t0.Add(time.Hour)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Equal(t, []string{"revenuepulse:test:scheduler"}, locker.keys)

	job, err := f.queue.Get(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateFailed, job.State)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: true}
	f := newFixture(t, locker, config.PipelineConfig{})

	stale := f.leased(t, "user_1")
	f.now = t0.Add(time.Hour)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	job, err := f.queue.Get(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, jobdomain.StateActive, job.State)
}

func TestNewRequiresQueue(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewConfigRaisesStallThreshold(t *testing.T) {
	cfg := config.Config{}
	cfg.Queue.Name = "stripe-scrape"
	cfg.Scheduler.StallThreshold = 5 * time.Minute
	cfg.Worker.JobTimeout = 10 * time.Minute

	got := NewConfig(cfg)
	require.Equal(t, 20*time.Minute, got.StallThreshold)
	require.Equal(t, time.Minute, got.RunInterval)
	require.Equal(t, "revenuepulse:stripe-scrape:scheduler", got.LockKey)
}

func TestNewConfigKeepsThresholdAboveHeartbeats(t *testing.T) {
	cfg := config.Config{}
	cfg.Scheduler.StallThreshold = time.Minute
	cfg.Worker.HeartbeatInterval = 30 * time.Second

	require.Equal(t, 2*time.Minute, NewConfig(cfg).StallThreshold)
}
