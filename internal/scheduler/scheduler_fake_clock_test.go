package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/nodeboss/internal/clock"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	salemocks "github.com/smallbiznis/nodeboss/internal/sale/mocks"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *salemocks.MockService, *clock.FakeClock) {
	t.Helper()
	sales := salemocks.NewMockService(gomock.NewController(t))
	clk := clock.NewFakeClock(time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:     zap.NewNop(),
		SaleSvc: sales,
		GenID:   dbtest.Node(t),
		Clock:   clk,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, sales, clk
}

func TestExpirePendingSalesUsesTTLCutoffAndDrains(t *testing.T) {
	useSchedulerRegistry(t)

	s, sales, clk := newTestScheduler(t, Config{BatchSize: 2, PendingSaleTTL: 6 * time.Hour})
	clk.Advance(30 * time.Minute)
	cutoff := time.Date(2026, 8, 3, 0, 30, 0, 0, time.UTC)

	gomock.InOrder(
		sales.EXPECT().ExpirePending(gomock.Any(), cutoff, 2).Return(2, nil),
		sales.EXPECT().ExpirePending(gomock.Any(), cutoff, 2).Return(2, nil),
		sales.EXPECT().ExpirePending(gomock.Any(), cutoff, 2).Return(1, nil),
	)

	if err := s.ExpirePendingSalesJob(context.Background()); err != nil {
		t.Fatalf("expire pending: %v", err)
	}
}

func TestExpirePendingSalesReturnsError(t *testing.T) {
	useSchedulerRegistry(t)

	s, sales, _ := newTestScheduler(t, Config{BatchSize: 10})
	boom := errors.New("db down")
	sales.EXPECT().ExpirePending(gomock.Any(), gomock.Any(), 10).Return(0, boom)

	if err := s.ExpirePendingSalesJob(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestReconciliationBacklogSetsGauges(t *testing.T) {
	registry := useSchedulerRegistry(t)

	s, sales, _ := newTestScheduler(t, Config{})
	sales.EXPECT().ReconciliationBacklog(gomock.Any()).Return(map[saledomain.CommissionStatus]int64{
		saledomain.CommissionStatusPendingReconciliation: 3,
	}, nil)

	if err := s.ReconciliationBacklogJob(context.Background()); err != nil {
		t.Fatalf("backlog: %v", err)
	}

	want := map[string]float64{"pending_reconciliation": 3, "capped": 0}
	for status, expected := range want {
		labels := map[string]string{"service": "nodeboss", "env": "test", "commission_status": status}
		if got := metricValue(t, registry, "nodeboss_commission_reconciliation_backlog", labels); got != expected {
			t.Fatalf("backlog %s = %v, want %v", status, got, expected)
		}
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	useSchedulerRegistry(t)

	s, sales, _ := newTestScheduler(t, Config{EnabledJobs: []string{"RECONCILIATION_BACKLOG"}})
	sales.EXPECT().ReconciliationBacklog(gomock.Any()).Return(map[saledomain.CommissionStatus]int64{}, nil)
	sales.EXPECT().ExpirePending(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	got := Config{}.withDefaults()
	if got.RunInterval != cfg.RunInterval || got.BatchSize != cfg.BatchSize || got.PendingSaleTTL != cfg.PendingSaleTTL {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
