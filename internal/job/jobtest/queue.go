// Package jobtest provides an in-memory job queue for tests.
package jobtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
)

// Queue mirrors the state rules of the Redis queue without retention.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*jobdomain.Job
	waiting []string
	now     func() time.Time
	poll    time.Duration

	// EnqueueErr and LeaseErr, when set, are returned by the next calls.
	EnqueueErr error
	LeaseErr   error
}

func NewQueue() *Queue {
	return &Queue{
		jobs: map[string]*jobdomain.Job{},
		now:  func() time.Time { return time.Now().UTC() },
		poll: 5 * time.Millisecond,
	}
}

// SetNow overrides the clock used for lease and finish timestamps.
func (q *Queue) SetNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *Queue) Enqueue(_ context.Context, job jobdomain.Job, opts jobdomain.Options) (*jobdomain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.EnqueueErr != nil {
		return nil, q.EnqueueErr
	}
	if _, exists := q.jobs[job.ID]; exists {
		return nil, jobdomain.ErrDuplicateJob
	}

	opts = opts.WithDefaults()
	job.Options = opts
	job.State = jobdomain.StateWaiting
	job.AttemptsAllowed = opts.Attempts
	job.CreatedAt = q.now()

	stored := job
	q.jobs[job.ID] = &stored
	q.waiting = append(q.waiting, job.ID)
	copied := stored
	return &copied, nil
}

func (q *Queue) Lease(ctx context.Context, consumer string, wait time.Duration) (*jobdomain.Job, error) {
	deadline := time.Now().Add(wait)
	for {
		job, err := q.tryLease()
		if err != nil || job != nil {
			return job, err
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.poll):
		}
	}
}

func (q *Queue) tryLease() (*jobdomain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.LeaseErr != nil {
		err := q.LeaseErr
		q.LeaseErr = nil
		return nil, err
	}
	if len(q.waiting) == 0 {
		return nil, nil
	}
	id := q.waiting[0]
	q.waiting = q.waiting[1:]

	job := q.jobs[id]
	now := q.now()
	job.State = jobdomain.StateActive
	job.AttemptsMade++
	job.ProcessedAt = &now
	job.HeartbeatAt = &now
	copied := *job
	return &copied, nil
}

func (q *Queue) Complete(_ context.Context, id string, result jobdomain.Result) error {
	return q.finish(id, func(job *jobdomain.Job) {
		job.State = jobdomain.StateCompleted
		job.Result = &result
	})
}

func (q *Queue) Fail(_ context.Context, id string, reason string) error {
	return q.finish(id, func(job *jobdomain.Job) {
		job.State = jobdomain.StateFailed
		job.FailedReason = reason
	})
}

func (q *Queue) finish(id string, apply func(*jobdomain.Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobdomain.ErrJobNotFound
	}
	if job.State != jobdomain.StateActive {
		return jobdomain.ErrInvalidTransition
	}
	now := q.now()
	job.FinishedAt = &now
	apply(job)
	return nil
}

func (q *Queue) UpdateProgress(_ context.Context, id string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", jobdomain.ErrInvalidProgress, percent)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobdomain.ErrJobNotFound
	}
	if job.State != jobdomain.StateActive {
		return jobdomain.ErrInvalidTransition
	}
	job.Progress = percent
	now := q.now()
	job.HeartbeatAt = &now
	return nil
}

func (q *Queue) Heartbeat(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobdomain.ErrJobNotFound
	}
	if job.State != jobdomain.StateActive {
		return jobdomain.ErrInvalidTransition
	}
	now := q.now()
	job.HeartbeatAt = &now
	return nil
}

func (q *Queue) Get(_ context.Context, id string) (*jobdomain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, jobdomain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (q *Queue) Counts(context.Context) (jobdomain.Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var counts jobdomain.Counts
	for _, job := range q.jobs {
		switch job.State {
		case jobdomain.StateWaiting:
			counts.Waiting++
		case jobdomain.StateActive:
			counts.Active++
		case jobdomain.StateCompleted:
			counts.Completed++
		case jobdomain.StateFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (q *Queue) Clean(_ context.Context, state jobdomain.State, grace time.Duration, limit int) ([]string, error) {
	if !state.Terminal() {
		return nil, fmt.Errorf("clean: unsupported state %s", state)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-grace)
	var removed []string
	for id, job := range q.jobs {
		if job.State == state && job.FinishedAt != nil && !job.FinishedAt.After(cutoff) {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	if limit > 0 && len(removed) > limit {
		removed = removed[:limit]
	}
	for _, id := range removed {
		delete(q.jobs, id)
	}
	return removed, nil
}

func (q *Queue) Drain(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := int64(len(q.waiting))
	for _, id := range q.waiting {
		delete(q.jobs, id)
	}
	q.waiting = nil
	return n, nil
}

func (q *Queue) Stalled(_ context.Context, olderThan time.Duration, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	var stalled []string
	for id, job := range q.jobs {
		if job.State != jobdomain.StateActive {
			continue
		}
		if seen := job.LastSeen(); seen != nil && !seen.After(cutoff) {
			stalled = append(stalled, id)
		}
	}
	sort.Strings(stalled)
	if limit > 0 && len(stalled) > limit {
		stalled = stalled[:limit]
	}
	return stalled, nil
}

var _ jobdomain.Queue = (*Queue)(nil)
