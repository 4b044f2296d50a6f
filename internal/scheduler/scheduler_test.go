package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	obsmetrics "github.com/smallbiznis/nodeboss/internal/observability/metrics"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
)

const shortTimeout = 5 * time.Millisecond

func TestExpirePendingSalesTimeoutIsSoft(t *testing.T) {
	registry := useSchedulerRegistry(t)
	s, sales, _ := newTestScheduler(t, Config{BatchSize: 5})

	sales.EXPECT().
		ExpirePending(gomock.Any(), gomock.Any(), 5).
		DoAndReturn(func(ctx context.Context, _ time.Time, _ int) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

	err := s.runJob(context.Background(), JobExpirePendingSales, 5, shortTimeout, s.ExpirePendingSalesJob)
	if err != nil {
		t.Fatalf("a timed out expiry pass should resume next tick, got %v", err)
	}

	job := map[string]string{"service": "nodeboss", "env": "test", "job": JobExpirePendingSales}
	if got := metricValue(t, registry, "nodeboss_scheduler_job_timeouts_total", job); got != 1 {
		t.Fatalf("timeouts = %v, want 1", got)
	}
	reason := map[string]string{
		"service": "nodeboss",
		"env":     "test",
		"job":     JobExpirePendingSales,
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := metricValue(t, registry, "nodeboss_scheduler_job_errors_total", reason); got != 1 {
		t.Fatalf("deadline errors = %v, want 1", got)
	}
}

func TestRunOnceRecordsExpiredSalesAndBacklog(t *testing.T) {
	registry := useSchedulerRegistry(t)
	s, sales, _ := newTestScheduler(t, Config{BatchSize: 10})

	sales.EXPECT().ExpirePending(gomock.Any(), gomock.Any(), 10).Return(3, nil)
	sales.EXPECT().ReconciliationBacklog(gomock.Any()).Return(map[saledomain.CommissionStatus]int64{
		saledomain.CommissionStatusCapped: 2,
	}, nil)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	processed := map[string]string{"service": "nodeboss", "env": "test", "job": JobExpirePendingSales, "resource": "sale"}
	if got := metricValue(t, registry, "nodeboss_scheduler_batch_processed_total", processed); got != 3 {
		t.Fatalf("expired sales = %v, want 3", got)
	}
	for _, job := range []string{JobExpirePendingSales, JobReconciliationBacklog} {
		labels := map[string]string{"service": "nodeboss", "env": "test", "job": job}
		if got := metricValue(t, registry, "nodeboss_scheduler_job_runs_total", labels); got != 1 {
			t.Fatalf("%s runs = %v, want 1", job, got)
		}
	}
	capped := map[string]string{"service": "nodeboss", "env": "test", "commission_status": "capped"}
	if got := metricValue(t, registry, "nodeboss_commission_reconciliation_backlog", capped); got != 2 {
		t.Fatalf("capped backlog = %v, want 2", got)
	}
}

func TestRunOnceKeepsReportingWhenExpiryFails(t *testing.T) {
	registry := useSchedulerRegistry(t)
	s, sales, _ := newTestScheduler(t, Config{BatchSize: 10})

	boom := errors.New("sales table locked")
	sales.EXPECT().ExpirePending(gomock.Any(), gomock.Any(), 10).Return(0, boom)
	sales.EXPECT().ReconciliationBacklog(gomock.Any()).Return(map[saledomain.CommissionStatus]int64{}, nil)

	if err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected expiry failure, got %v", err)
	}

	reason := map[string]string{
		"service": "nodeboss",
		"env":     "test",
		"job":     JobExpirePendingSales,
		"reason":  obsmetrics.SchedulerJobReasonUnknown,
	}
	if got := metricValue(t, registry, "nodeboss_scheduler_job_errors_total", reason); got != 1 {
		t.Fatalf("expiry errors = %v, want 1", got)
	}
	backlogRuns := map[string]string{"service": "nodeboss", "env": "test", "job": JobReconciliationBacklog}
	if got := metricValue(t, registry, "nodeboss_scheduler_job_runs_total", backlogRuns); got != 1 {
		t.Fatalf("backlog runs = %v, want 1", got)
	}
}

// useSchedulerRegistry points the scheduler metrics at a fresh registry for
// the duration of the test.
func useSchedulerRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "nodeboss", Environment: "test"})

	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	})
	return registry
}

// metricValue returns the counter or gauge sample carrying exactly labels.
func metricValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			default:
				t.Fatalf("metric %s is neither counter nor gauge", name)
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) != len(labels) {
		return false
	}
	for _, label := range metric.GetLabel() {
		if want, ok := labels[label.GetName()]; !ok || want != label.GetValue() {
			return false
		}
	}
	return true
}
