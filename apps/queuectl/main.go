// Command queuectl removes finished jobs and drains the waiting list of the
// scrape queue, then prints the remaining counts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/job"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/observability"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/pkg/redisdb"
)

const lockTTL = 2 * time.Minute

type options struct {
	grace time.Duration
	limit int
	drain bool
}

type report struct {
	RemovedFailed    int              `json:"removedFailed"`
	RemovedCompleted int              `json:"removedCompleted"`
	Drained          int64            `json:"drained"`
	Counts           jobdomain.Counts `json:"counts"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.DurationVar(&opts.grace, "grace", 0, "only remove jobs finished longer ago than this")
	flag.IntVar(&opts.limit, "limit", 1000, "maximum jobs removed per state")
	flag.BoolVar(&opts.drain, "drain", true, "remove every waiting job")
	flag.Parse()

	var (
		cfg    config.Config
		queue  jobdomain.Queue
		locker *ratelimit.Locker
		log    *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		redisdb.Module,
		clock.Module,
		job.Module,
		ratelimit.Module,
		fx.Populate(&cfg, &queue, &locker, &log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), lockTTL)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "queuectl:", err)
		return 1
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	lockKey := fmt.Sprintf("revenuepulse:%s:maintenance", cfg.Queue.Name)
	var out report
	err := locker.WithLock(ctx, lockKey, lockTTL, func(ctx context.Context) error {
		var err error
		out, err = clean(ctx, queue, opts)
		return err
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		log.Warn("queuectl.skipped", zap.String("lock", lockKey))
		return 2
	}
	if err != nil {
		log.Error("queuectl.failed", zap.Error(err))
		return 1
	}

	log.Info("queuectl.done",
		zap.Int("removed_failed", out.RemovedFailed),
		zap.Int("removed_completed", out.RemovedCompleted),
		zap.Int64("drained", out.Drained),
	)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	return 0
}

func clean(ctx context.Context, queue jobdomain.Queue, opts options) (report, error) {
	var out report

	failed, err := queue.Clean(ctx, jobdomain.StateFailed, opts.grace, opts.limit)
	if err != nil {
		return out, fmt.Errorf("clean failed: %w", err)
	}
	out.RemovedFailed = len(failed)

	completed, err := queue.Clean(ctx, jobdomain.StateCompleted, opts.grace, opts.limit)
	if err != nil {
		return out, fmt.Errorf("clean completed: %w", err)
	}
	out.RemovedCompleted = len(completed)

	if opts.drain {
		drained, err := queue.Drain(ctx)
		if err != nil {
			return out, fmt.Errorf("drain: %w", err)
		}
		out.Drained = drained
	}

	counts, err := queue.Counts(ctx)
	if err != nil {
		return out, fmt.Errorf("counts: %w", err)
	}
	out.Counts = counts
	return out, nil
}
