package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
)

// Lease is a running job's hold on the queue.
type Lease interface {
	// Progress records a 0-100 completion value. Failures are only logged.
	Progress(ctx context.Context, percent int)
	// Check refreshes the lease and returns ErrLeaseLost once the queue no
	// longer holds the job as active.
	Check(ctx context.Context) error
}

type jobLease struct {
	queue jobdomain.Queue
	id    string
	log   *zap.Logger
}

func (l *jobLease) Progress(ctx context.Context, percent int) {
	if err := l.queue.UpdateProgress(ctx, l.id, percent); err != nil {
		l.log.Warn("worker.job.progress_failed", zap.Int("progress", percent), zap.Error(err))
	}
}

func (l *jobLease) Check(ctx context.Context) error {
	err := l.queue.Heartbeat(ctx, l.id)
	if errors.Is(err, jobdomain.ErrInvalidTransition) || errors.Is(err, jobdomain.ErrJobNotFound) {
		return fmt.Errorf("%w: %w", jobdomain.ErrLeaseLost, err)
	}
	return err
}

// keepAlive refreshes the lease every interval until ctx ends. A lost lease
// cancels the job with ErrLeaseLost as the cause; other heartbeat errors are
// retried on the next tick.
func (l *jobLease) keepAlive(ctx context.Context, interval time.Duration, lost context.CancelCauseFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := l.Check(ctx)
		switch {
		case err == nil:
		case errors.Is(err, jobdomain.ErrLeaseLost):
			l.log.Warn("worker.job.lease_lost", zap.Error(err))
			lost(err)
			return
		case ctx.Err() == nil:
			l.log.Warn("worker.job.heartbeat_failed", zap.Error(err))
		}
	}
}
