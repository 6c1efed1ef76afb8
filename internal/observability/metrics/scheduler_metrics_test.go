package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestSchedulerMetricsObserveJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "revenuepulse", Environment: "test"})

	m.ObserveJob("recover_stalled", 20*time.Millisecond, nil)
	m.ObserveJob("recover_stalled", time.Second, fmt.Errorf("fail: %w", context.DeadlineExceeded))
	m.AddSwept("recover_stalled", 3)
	m.AddSwept("recover_stalled", 0)

	base := map[string]string{"service": "revenuepulse", "env": "test", "job": "recover_stalled"}
	require.Equal(t, 2.0, counterValue(t, registry, "revenuepulse_scheduler_job_runs_total", base))
	require.Equal(t, 3.0, counterValue(t, registry, "revenuepulse_scheduler_jobs_swept_total", base))

	withReason := map[string]string{"reason": SchedulerJobReasonDeadlineExceeded}
	for k, v := range base {
		withReason[k] = v
	}
	require.Equal(t, 1.0, counterValue(t, registry, "revenuepulse_scheduler_job_errors_total", withReason))
}

func TestClassifySchedulerReason(t *testing.T) {
	require.Equal(t, SchedulerJobReasonCanceled, ClassifySchedulerReason(context.Canceled))
	require.Equal(t, SchedulerJobReasonUnknown, ClassifySchedulerReason(errors.New("boom")))
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveJob("clean_finished", time.Second, errors.New("boom"))
	m.AddSwept("clean_finished", 1)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
