package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
)

const keyPrefix = "revenuepulse"

const (
	keyWait      = "wait"
	keyActive    = "active"
	keyCompleted = "completed"
	keyFailed    = "failed"
	keyDelayed   = "delayed"
	keyPaused    = "paused"
)

var ErrUnsupportedCleanState = errors.New("unsupported_clean_state")

const leasePollInterval = 200 * time.Millisecond

type Params struct {
	fx.In

	Client *redis.Client
	Config config.Config
	Clock  clock.Clock
	Log    *zap.Logger
}

// Queue keeps jobs in Redis under one namespace:
//
//	{ns}:job:{id}   hash with the job fields
//	{ns}:wait       list, pushed left, leased right
//	{ns}:active     list of leased ids
//	{ns}:completed  sorted set scored by finish time (ms)
//	{ns}:failed     sorted set scored by finish time (ms)
type Queue struct {
	client *redis.Client
	ns     string
	clock  clock.Clock
	log    *zap.Logger
}

func New(p Params) *Queue {
	name := strings.TrimSpace(p.Config.Queue.Name)
	if name == "" {
		name = config.DefaultJobName
	}
	return newQueue(p.Client, keyPrefix+":"+name, p.Clock, p.Log)
}

func newQueue(client *redis.Client, ns string, clk clock.Clock, log *zap.Logger) *Queue {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		client: client,
		ns:     ns,
		clock:  clk,
		log:    log.Named("queue").With(zap.String("namespace", ns)),
	}
}

func (q *Queue) key(name string) string {
	return q.ns + ":" + name
}

func (q *Queue) jobKeyPrefix() string {
	return q.ns + ":job:"
}

func (q *Queue) jobKey(id string) string {
	return q.jobKeyPrefix() + id
}

func (q *Queue) nowMillis() int64 {
	return q.clock.Now().UnixMilli()
}

func (q *Queue) Enqueue(ctx context.Context, job jobdomain.Job, opts jobdomain.Options) (*jobdomain.Job, error) {
	if strings.TrimSpace(job.ID) == "" {
		return nil, errors.New("enqueue: job id is required")
	}

	opts = opts.WithDefaults()
	job.Options = opts
	job.State = jobdomain.StateWaiting
	job.Progress = 0
	job.AttemptsMade = 0
	job.AttemptsAllowed = opts.Attempts
	job.FailedReason = ""
	job.Result = nil
	job.CreatedAt = time.UnixMilli(q.nowMillis()).UTC()
	job.ProcessedAt = nil
	job.FinishedAt = nil

	fields, err := encodeJob(job)
	if err != nil {
		return nil, err
	}

	args := append([]interface{}{job.ID}, fields...)
	created, err := enqueueScript.Run(ctx, q.client, []string{q.jobKey(job.ID), q.key(keyWait)}, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	if created == 0 {
		return nil, jobdomain.ErrDuplicateJob
	}

	q.log.Debug("queue.job.enqueued", zap.String("job_id", job.ID), zap.String("kind", job.Kind))
	return &job, nil
}

// Lease moves and activates a job in one script, so a crash never leaves an
// id in the active list without a lease time. A positive wait polls until a
// job arrives or wait passes.
func (q *Queue) Lease(ctx context.Context, consumer string, wait time.Duration) (*jobdomain.Job, error) {
	deadline := time.Now().Add(wait)
	for {
		id, err := leaseScript.Run(ctx, q.client,
			[]string{q.key(keyWait), q.key(keyActive)},
			q.nowMillis(), consumer, q.jobKeyPrefix(),
		).Text()
		switch {
		case err == nil:
			job, err := q.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			q.log.Debug("queue.job.leased", zap.String("job_id", id), zap.String("consumer", consumer))
			return job, nil
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("lease: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(leasePollInterval, remaining)):
		}
	}
}

func (q *Queue) Complete(ctx context.Context, id string, result jobdomain.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return q.finish(ctx, id, jobdomain.StateCompleted, keyCompleted, fieldResult, string(raw),
		fieldKeepCompleteAge, fieldKeepCompleteCount)
}

func (q *Queue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(ctx, id, jobdomain.StateFailed, keyFailed, fieldFailedReason, reason,
		fieldKeepFailAge, fieldKeepFailCount)
}

func (q *Queue) finish(ctx context.Context, id string, state jobdomain.State, set, field, value, ageField, countField string) error {
	status, err := finishScript.Run(ctx, q.client,
		[]string{q.jobKey(id), q.key(keyActive), q.key(set)},
		id, string(state), field, value, q.nowMillis(), q.jobKeyPrefix(), ageField, countField,
	).Int()
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", id, state, err)
	}
	if err := transitionError(status); err != nil {
		return err
	}
	q.log.Debug("queue.job.finished", zap.String("job_id", id), zap.String("state", string(state)))
	return nil
}

func (q *Queue) UpdateProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", jobdomain.ErrInvalidProgress, percent)
	}
	status, err := progressScript.Run(ctx, q.client, []string{q.jobKey(id)}, percent, q.nowMillis()).Int()
	if err != nil {
		return fmt.Errorf("update progress of %s: %w", id, err)
	}
	return transitionError(status)
}

func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	status, err := heartbeatScript.Run(ctx, q.client, []string{q.jobKey(id)}, q.nowMillis()).Int()
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", id, err)
	}
	return transitionError(status)
}

func transitionError(status int) error {
	switch status {
	case 1:
		return nil
	case -1:
		return jobdomain.ErrJobNotFound
	default:
		return jobdomain.ErrInvalidTransition
	}
}

func (q *Queue) Get(ctx context.Context, id string) (*jobdomain.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, jobdomain.ErrJobNotFound
	}
	return decodeJob(fields)
}

func (q *Queue) Counts(ctx context.Context) (jobdomain.Counts, error) {
	var (
		waiting, active, paused *redis.IntCmd
		completed, failed       *redis.IntCmd
		delayed                 *redis.IntCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, q.key(keyWait))
		active = pipe.LLen(ctx, q.key(keyActive))
		paused = pipe.LLen(ctx, q.key(keyPaused))
		completed = pipe.ZCard(ctx, q.key(keyCompleted))
		failed = pipe.ZCard(ctx, q.key(keyFailed))
		delayed = pipe.ZCard(ctx, q.key(keyDelayed))
		return nil
	})
	if err != nil {
		return jobdomain.Counts{}, fmt.Errorf("count jobs: %w", err)
	}
	return jobdomain.Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val(),
	}, nil
}

func (q *Queue) Clean(ctx context.Context, state jobdomain.State, grace time.Duration, limit int) ([]string, error) {
	var set string
	switch state {
	case jobdomain.StateCompleted:
		set = keyCompleted
	case jobdomain.StateFailed:
		set = keyFailed
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCleanState, state)
	}
	if limit <= 0 {
		limit = 1000
	}
	if grace < 0 {
		grace = 0
	}

	cutoff := q.nowMillis() - grace.Milliseconds()
	ids, err := cleanScript.Run(ctx, q.client, []string{q.key(set)},
		strconv.FormatInt(cutoff, 10), limit, q.jobKeyPrefix(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", state, err)
	}
	q.log.Info("queue.clean", zap.String("state", string(state)), zap.Int("removed", len(ids)))
	return ids, nil
}

func (q *Queue) Drain(ctx context.Context) (int64, error) {
	removed, err := drainScript.Run(ctx, q.client, []string{q.key(keyWait)}, q.jobKeyPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("drain: %w", err)
	}
	q.log.Info("queue.drain", zap.Int64("removed", removed))
	return removed, nil
}

func (q *Queue) Stalled(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	ids, err := q.client.LRange(ctx, q.key(keyActive), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, q.jobKey(id), fieldProcessedAt, fieldHeartbeatAt)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read active jobs: %w", err)
	}

	cutoff := q.nowMillis() - olderThan.Milliseconds()
	var stalled []string
	for i, cmd := range cmds {
		seen := lastSeenMillis(cmd.Val())
		if seen <= 0 || seen > cutoff {
			continue
		}
		stalled = append(stalled, ids[i])
		if limit > 0 && len(stalled) >= limit {
			break
		}
	}
	return stalled, nil
}

// lastSeenMillis picks the newest of the lease and heartbeat timestamps.
func lastSeenMillis(values []interface{}) int64 {
	var latest int64
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && ms > latest {
			latest = ms
		}
	}
	return latest
}

var _ jobdomain.Queue = (*Queue)(nil)
