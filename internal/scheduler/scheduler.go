package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/clock"
	obsmetrics "github.com/smallbiznis/nodeboss/internal/observability/metrics"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpirePendingSales    = "expire_pending_sales"
	JobReconciliationBacklog = "reconciliation_backlog"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	SaleSvc saledomain.Service
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	saleSvc saledomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SaleSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		saleSvc: p.SaleSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout: the next tick resumes the work
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpirePendingSales, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpirePendingSales, s.cfg.BatchSize, 30*time.Second, s.ExpirePendingSalesJob)
		}},
		{JobReconciliationBacklog, func(ctx context.Context) error {
			return s.runJob(ctx, JobReconciliationBacklog, 1, 10*time.Second, s.ReconciliationBacklogJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpirePendingSalesJob marks pending sales that never received a payment
// outcome within PendingSaleTTL as expired. It drains in batches until a short batch.
func (s *Scheduler) ExpirePendingSalesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpirePendingSales, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	cutoff := s.clock.Now().UTC().Add(-s.cfg.PendingSaleTTL)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		expired, err := s.saleSvc.ExpirePending(ctx, cutoff, s.cfg.BatchSize)
		run.AddProcessed(expired)
		obsmetrics.Scheduler().AddBatchProcessed(JobExpirePendingSales, "sale", expired)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.sale.expire.failed", JobExpirePendingSales, err,
				zap.Time("cutoff", cutoff),
			)
			return err
		}
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
}

// ReconciliationBacklogJob exports how many completed sales are capped or
// waiting on manual reconciliation.
func (s *Scheduler) ReconciliationBacklogJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconciliationBacklog, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	counts, err := s.saleSvc.ReconciliationBacklog(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.backlog.failed", JobReconciliationBacklog, err)
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	for _, status := range []saledomain.CommissionStatus{
		saledomain.CommissionStatusCapped,
		saledomain.CommissionStatusPendingReconciliation,
	} {
		count := counts[status]
		schedMetrics.SetReconciliationBacklog(string(status), count)
		if status == saledomain.CommissionStatusPendingReconciliation && count > 0 {
			s.logger(ctx).Warn("sales awaiting commission reconciliation", zap.Int64("count", count))
		}
	}
	run.AddProcessed(1)
	return nil
}
