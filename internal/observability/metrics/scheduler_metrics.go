package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerJobReasonDeadlineExceeded = "deadline_exceeded"
	SchedulerJobReasonCanceled         = "canceled"
	SchedulerJobReasonUnknown          = "unknown"
)

// SchedulerMetrics tracks the queue maintenance loop.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	swept       *prometheus.CounterVec
}

func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "revenuepulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revenuepulse_scheduler_job_runs_total",
			Help:        "Scheduler job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revenuepulse_scheduler_job_errors_total",
			Help:        "Scheduler job failures by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "revenuepulse_scheduler_job_duration_seconds",
			Help:        "Scheduler job wall time.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"job"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revenuepulse_scheduler_jobs_swept_total",
			Help:        "Queue entries touched by maintenance jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}
	registerer.MustRegister(m.jobRuns, m.jobErrors, m.jobDuration, m.swept)
	return m
}

func (m *SchedulerMetrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddSwept(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.swept.WithLabelValues(job).Add(float64(count))
}

func ClassifySchedulerReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return SchedulerJobReasonCanceled
	default:
		return SchedulerJobReasonUnknown
	}
}
