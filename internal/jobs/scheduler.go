// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

const runTimeout = time.Minute

// Reconciler fails transcriptions that lost their background task.
type Reconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	spec       string
	staleAfter time.Duration
}

// NewScheduler takes a six-field cron spec (with seconds).
func NewScheduler(reconciler Reconciler, spec string, staleAfter time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		spec:       spec,
		staleAfter: staleAfter,
	}
}

// Start registers the reconcile job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runReconcile); err != nil {
		return fmt.Errorf("schedule reconcile job %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Printf("Cron scheduler started (reconcile %q, stale after %s)", s.spec, s.staleAfter)
	return nil
}

// Stop halts the schedule; the returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce reconciles immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.reconciler.ReconcileStale(ctx, s.staleAfter)
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(logger.WithRequestID(context.Background(), "cron"), runTimeout)
	defer cancel()

	n, err := s.RunOnce(ctx)
	log := logger.New(ctx)
	if err != nil {
		log.LogError("reconcile_stale", err)
		return
	}
	if n > 0 {
		log.LogInfof("reconcile_stale", "failed %d stale transcriptions", n)
	}
}
