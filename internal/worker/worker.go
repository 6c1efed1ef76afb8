package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	obscontext "github.com/smallbiznis/revenuepulse/internal/observability/context"
	"github.com/smallbiznis/revenuepulse/internal/observability/logger"
	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/observability/tracing"
	"github.com/smallbiznis/revenuepulse/pkg/telemetry/correlation"
)

var ErrInvalidConfig = errors.New("invalid_worker_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Queue    jobdomain.Queue
	Handlers []Handler `group:"job_handlers"`
	Clock    clock.Clock
	Metrics  *metrics.WorkerMetrics `optional:"true"`
	Config   Config                 `optional:"true"`
}

// Worker runs a fixed pool of goroutines that lease jobs, execute them and
// report the terminal state. Job errors never escape the pool.
type Worker struct {
	log      *zap.Logger
	queue    jobdomain.Queue
	handlers map[string]Handler
	clock    clock.Clock
	metrics  *metrics.WorkerMetrics
	cfg      Config
	tracer   trace.Tracer
	consumer string

	mu        sync.Mutex
	wg        sync.WaitGroup
	stopLease context.CancelFunc
	abortJobs context.CancelFunc
}

func New(p Params) (*Worker, error) {
	if p.Queue == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	handlers := make(map[string]Handler, len(p.Handlers))
	for _, h := range p.Handlers {
		if _, exists := handlers[h.Kind()]; exists {
			return nil, fmt.Errorf("%w: duplicate handler for %s", ErrInvalidConfig, h.Kind())
		}
		handlers[h.Kind()] = h
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}

	return &Worker{
		log:      p.Log.Named("worker"),
		queue:    p.Queue,
		handlers: handlers,
		clock:    clk,
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
		tracer:   otel.Tracer("revenuepulse/worker"),
		consumer: host + ":" + strconv.Itoa(os.Getpid()),
	}, nil
}

// Start launches the pool. Leasing stops on Stop; jobs already leased keep
// running until they finish or the shutdown timeout passes.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopLease != nil {
		return
	}

	leaseCtx, stopLease := context.WithCancel(context.Background())
	jobsCtx, abortJobs := context.WithCancel(context.Background())
	w.stopLease = stopLease
	w.abortJobs = abortJobs

	w.logReady(leaseCtx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		consumer := fmt.Sprintf("%s:%d", w.consumer, i)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.RunForever(leaseCtx, jobsCtx, consumer)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.monitorDepth(leaseCtx)
	}()
}

// Stop waits for in-flight jobs up to the shutdown timeout and then cancels
// them.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	stopLease, abortJobs := w.stopLease, w.abortJobs
	w.mu.Unlock()
	if stopLease == nil {
		return nil
	}

	w.log.Info("worker.stopping")
	stopLease()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		abortJobs()
		w.log.Info("worker.stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	w.log.Warn("worker.shutdown.timeout", zap.Duration("timeout", w.cfg.ShutdownTimeout))
	abortJobs()
	<-done
	return nil
}

// RunForever leases and executes jobs until leaseCtx is cancelled.
func (w *Worker) RunForever(leaseCtx, jobsCtx context.Context, consumer string) {
	for {
		if leaseCtx.Err() != nil {
			return
		}
		if err := w.RunOnce(leaseCtx, jobsCtx, consumer); err != nil {
			if leaseCtx.Err() != nil {
				return
			}
			w.log.Warn("worker.lease.failed", zap.String("consumer", consumer), zap.Error(err))
			select {
			case <-leaseCtx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
			}
		}
	}
}

// RunOnce leases at most one job and executes it on jobsCtx.
func (w *Worker) RunOnce(leaseCtx, jobsCtx context.Context, consumer string) error {
	job, err := w.queue.Lease(leaseCtx, consumer, w.cfg.LeaseWait)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	w.process(jobsCtx, job)
	return nil
}

func (w *Worker) process(parent context.Context, job *jobdomain.Job) {
	ctx := tracing.ExtractMap(parent, job.Payload.Trace)
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	ctx = obscontext.WithJobID(ctx, job.ID)
	ctx = obscontext.WithOwnerID(ctx, job.OwnerID)

	ctx, span := w.tracer.Start(ctx, "worker.job", trace.WithAttributes(
		attribute.String("job.kind", job.Kind),
		attribute.Int("job.attempt", job.AttemptsMade),
	))
	defer span.End()

	log := logger.WithContext(ctx, w.log).With(zap.String("kind", job.Kind))
	log.Info("worker.job.start",
		zap.Int("attempt", job.AttemptsMade),
		zap.Int("attempts_allowed", job.AttemptsAllowed),
	)

	w.metrics.IncInFlight()
	defer w.metrics.DecInFlight()

	start := w.clock.Now()
	result, err := w.execute(ctx, job, log)
	duration := w.clock.Now().Sub(start)
	w.metrics.ObserveJob(job.Kind, duration, err)

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ReportTimeout)
	defer cancel()

	if errors.Is(err, jobdomain.ErrLeaseLost) {
		span.SetStatus(codes.Error, "lease_lost")
		log.Warn("worker.job.abandoned", zap.Duration("duration", duration), zap.Error(err))
		return
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, metrics.ClassifyJobReason(err))
		log.Error("worker.job.failed",
			zap.Duration("duration", duration),
			zap.String("reason", metrics.ClassifyJobReason(err)),
			zap.Error(err),
		)
		if reportErr := w.queue.Fail(reportCtx, job.ID, err.Error()); reportErr != nil {
			log.Error("worker.job.report_failed", zap.String("state", string(jobdomain.StateFailed)), zap.Error(reportErr))
		}
		return
	}

	if reportErr := w.queue.Complete(reportCtx, job.ID, result); reportErr != nil {
		log.Error("worker.job.report_failed", zap.String("state", string(jobdomain.StateCompleted)), zap.Error(reportErr))
		return
	}
	log.Info("worker.job.finish",
		zap.Duration("duration", duration),
		zap.String("record_id", result.RecordID),
		zap.String(correlation.AttributeKey, correlationID),
	)
}

func (w *Worker) execute(ctx context.Context, job *jobdomain.Job, log *zap.Logger) (result jobdomain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker.job.panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", jobdomain.ErrJobPanicked, r)
		}
	}()

	handler, ok := w.handlers[job.Kind]
	if !ok {
		return jobdomain.Result{}, fmt.Errorf("%w: %s", jobdomain.ErrUnknownJobKind, job.Kind)
	}

	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	ctx, lost := context.WithCancelCause(ctx)

	lease := &jobLease{queue: w.queue, id: job.ID, log: log}
	beat := make(chan struct{})
	go func() {
		defer close(beat)
		lease.keepAlive(ctx, w.cfg.HeartbeatInterval, lost)
	}()
	defer func() {
		lost(nil)
		<-beat
	}()

	result, err = handler.Handle(ctx, job, lease)
	if cause := context.Cause(ctx); err != nil && errors.Is(cause, jobdomain.ErrLeaseLost) && !errors.Is(err, jobdomain.ErrLeaseLost) {
		err = fmt.Errorf("%w: %w", cause, err)
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, billingdomain.ErrUpstream) {
		err = fmt.Errorf("%w: %w", billingdomain.ErrUpstream, err)
	}
	return result, err
}

func (w *Worker) logReady(ctx context.Context) {
	counts, err := w.queue.Counts(ctx)
	if err != nil {
		w.log.Warn("worker.ready", zap.Int("concurrency", w.cfg.Concurrency), zap.Error(err))
		return
	}
	w.metrics.SetQueueDepth(counts)
	w.log.Info("worker.ready",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int64("waiting", counts.Waiting),
	)
}

func (w *Worker) monitorDepth(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.DepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		counts, err := w.queue.Counts(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Debug("worker.depth.failed", zap.Error(err))
			}
			continue
		}
		w.metrics.SetQueueDepth(counts)
	}
}
