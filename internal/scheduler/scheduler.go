package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	obslogger "github.com/smallbiznis/revenuepulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
)

var ErrInvalidConfig = errors.New("invalid_config")

const (
	JobRecoverStalled = "recover_stalled"
	JobCleanFinished  = "clean_finished"
)

// Locker serialises sweeps across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Queue    jobdomain.Queue
	Locker   Locker `optional:"true"`
	Pipeline *config.PipelineConfigHolder
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                       `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler periodically repairs and trims the job queue.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	queue    jobdomain.Queue
	locker   Locker
	pipeline *config.PipelineConfigHolder
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Queue == nil || p.Pipeline == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		queue:    p.Queue,
		locker:   p.Locker,
		pipeline: p.Pipeline,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes every maintenance job once. When another process holds
// the sweep lock the run is skipped.
func (s *Scheduler) RunOnce(parent context.Context) error {
	run := func(ctx context.Context) error {
		return errors.Join(
			s.runJob(ctx, JobRecoverStalled, 30*time.Second, s.RecoverStalledJob),
			s.runJob(ctx, JobCleanFinished, 30*time.Second, s.CleanFinishedJob),
		)
	}
	if s.locker == nil || s.cfg.LockKey == "" {
		return run(parent)
	}

	err := s.locker.WithLock(parent, s.cfg.LockKey, s.cfg.RunInterval, run)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Debug("scheduler.skip", zap.String("reason", "lock_held"))
		return nil
	}
	return err
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)

	processed, err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveJob(name, elapsed, err)
	s.metrics.AddSwept(name, processed)

	fields := []zap.Field{
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int("processed_count", processed),
	}
	if err == nil {
		if processed > 0 {
			log.Info("scheduler.job.finish", fields...)
		} else {
			log.Debug("scheduler.job.finish", fields...)
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("job timed out", append(fields, zap.Duration("timeout", timeout), zap.Error(err))...)
		return nil
	}
	log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

// RecoverStalledJob fails active jobs whose lease is older than the stall
// threshold, which happens when an executor dies mid-job.
func (s *Scheduler) RecoverStalledJob(ctx context.Context) (int, error) {
	ids, err := s.queue.Stalled(ctx, s.cfg.StallThreshold, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	reason := fmt.Errorf("%w: no progress for %s", jobdomain.ErrJobStalled, s.cfg.StallThreshold).Error()
	recovered := 0
	for _, id := range ids {
		err := s.queue.Fail(ctx, id, reason)
		switch {
		case err == nil:
			recovered++
			s.log.Warn("scheduler.job.stalled", zap.String("job_id", id))
		case errors.Is(err, jobdomain.ErrInvalidTransition), errors.Is(err, jobdomain.ErrJobNotFound):
			// finished between listing and failing
		default:
			return recovered, err
		}
	}
	return recovered, nil
}

// CleanFinishedJob applies the age based retention windows.
func (s *Scheduler) CleanFinishedJob(ctx context.Context) (int, error) {
	retention := s.pipeline.Get()
	removed := 0

	if retention.RemoveOnCompleteAge > 0 {
		ids, err := s.queue.Clean(ctx, jobdomain.StateCompleted, retention.RemoveOnCompleteAge, s.cfg.BatchSize)
		removed += len(ids)
		if err != nil {
			return removed, err
		}
	}
	if retention.RemoveOnFailAge > 0 {
		ids, err := s.queue.Clean(ctx, jobdomain.StateFailed, retention.RemoveOnFailAge, s.cfg.BatchSize)
		removed += len(ids)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}
