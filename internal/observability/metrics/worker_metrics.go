package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
)

const (
	JobOutcomeCompleted = "completed"
	JobOutcomeFailed    = "failed"
)

const (
	JobReasonDeadlineExceeded  = "deadline_exceeded"
	JobReasonInvalidCredential = "invalid_credential"
	JobReasonRateLimited       = "rate_limited"
	JobReasonUpstream          = "upstream"
	JobReasonDuplicateRecord   = "duplicate_record"
	JobReasonUnknownKind       = "unknown_kind"
	JobReasonPanic             = "panic"
	JobReasonUnknown           = "unknown"
)

// WorkerMetrics captures job executor health signals.
type WorkerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	inFlight    prometheus.Gauge
	queueDepth  *prometheus.GaugeVec
}

// NewWorkerMetrics registers the worker collectors on registerer.
func NewWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
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
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_worker_job_runs_total",
		Help:        "Executed jobs by kind and terminal outcome.",
		ConstLabels: constLabels,
	}, []string{"kind", "outcome"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "revenuepulse_worker_job_duration_seconds",
		Help:        "Wall time from lease to terminal state.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"kind"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_worker_job_errors_total",
		Help:        "Failed jobs by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"kind", "reason"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "revenuepulse_worker_jobs_in_flight",
		Help:        "Jobs currently executing in this process.",
		ConstLabels: constLabels,
	})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "revenuepulse_queue_jobs",
		Help:        "Jobs held by the queue per state.",
		ConstLabels: constLabels,
	}, []string{"state"})

	registerer.MustRegister(jobRuns, jobDuration, jobErrors, inFlight, queueDepth)

	return &WorkerMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobErrors:   jobErrors,
		inFlight:    inFlight,
		queueDepth:  queueDepth,
	}
}

// ObserveJob records the terminal outcome and duration of one job. err is
// nil for completed jobs.
func (m *WorkerMetrics) ObserveJob(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := JobOutcomeCompleted
	if err != nil {
		outcome = JobOutcomeFailed
		m.jobErrors.WithLabelValues(kind, ClassifyJobReason(err)).Inc()
	}
	m.jobRuns.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *WorkerMetrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *WorkerMetrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *WorkerMetrics) SetQueueDepth(counts jobdomain.Counts) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(jobdomain.StateWaiting)).Set(float64(counts.Waiting))
	m.queueDepth.WithLabelValues(string(jobdomain.StateActive)).Set(float64(counts.Active))
	m.queueDepth.WithLabelValues(string(jobdomain.StateCompleted)).Set(float64(counts.Completed))
	m.queueDepth.WithLabelValues(string(jobdomain.StateFailed)).Set(float64(counts.Failed))
}

// ClassifyJobReason maps executor errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, jobdomain.ErrJobPanicked):
		return JobReasonPanic
	case errors.Is(err, jobdomain.ErrUnknownJobKind):
		return JobReasonUnknownKind
	case errors.Is(err, billingdomain.ErrInvalidCredential):
		return JobReasonInvalidCredential
	case errors.Is(err, billingdomain.ErrRateLimited):
		return JobReasonRateLimited
	case errors.Is(err, billingdomain.ErrUpstream):
		return JobReasonUpstream
	case errors.Is(err, scrapeddatadomain.ErrDuplicateRecord):
		return JobReasonDuplicateRecord
	default:
		return JobReasonUnknown
	}
}
