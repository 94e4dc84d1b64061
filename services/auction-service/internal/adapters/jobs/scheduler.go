package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
)

// BacklogSpec is how often the worker logs its outbox backlog.
const BacklogSpec = "@every 1m"

type Reconciler interface {
	Reconcile(ctx context.Context) (*admin.ReconcileReport, error)
}

type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Scheduler runs the worker's periodic jobs: the cascade repair pass and the
// outbox backlog log line. A run still in progress makes the next tick skip.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	outbox     PendingCounter
	log        logger.Logger
}

func NewScheduler(reconciler Reconciler, outbox PendingCounter, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		outbox:     outbox,
		log:        log.With("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron loop. reconcileSpec accepts the
// standard five-field syntax and descriptors such as "@every 5m".
func (s *Scheduler) Start(ctx context.Context, reconcileSpec string) error {
	if _, err := s.cron.AddFunc(reconcileSpec, func() { s.reconcile(ctx) }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", reconcileSpec, err)
	}
	if _, err := s.cron.AddFunc(BacklogSpec, func() { s.logBacklog(ctx) }); err != nil {
		return fmt.Errorf("invalid backlog schedule: %w", err)
	}

	s.log.Info("Starting scheduler", "reconcile", reconcileSpec)
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.log.Error("Scheduled reconcile failed", "error", err)
		return
	}
	if report.Scanned == 0 {
		s.log.Debug("Nothing to reconcile")
		return
	}
	s.log.Info("Scheduled reconcile finished",
		"scanned", report.Scanned,
		"removed", report.Removed,
		"already_gone", report.AlreadyGone,
		"needs_attention", report.NeedsAttention,
		"failed", report.Failed)
}

func (s *Scheduler) logBacklog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	pending, err := s.outbox.CountPending(ctx)
	if err != nil {
		s.log.Warn("Failed to count pending outbox events", "error", err)
		return
	}
	s.log.Info("Outbox backlog", "pending", pending)
}
