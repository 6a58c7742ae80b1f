package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// DefaultReconcileInterval is how often the reconciliation sweep runs.
const DefaultReconcileInterval = 24 * time.Hour

// Scheduler runs the background work: upload queue workers plus the
// periodic reconciliation sweep. Uploads may overlap freely; the sweep is
// serialised by the engine itself, so an overrunning sweep simply skips
// the next tick.
type Scheduler struct {
	syncer   driving.Syncer
	queue    *UploadQueue
	interval time.Duration
	workers  int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. interval <= 0 selects the default;
// workers <= 0 selects one upload worker.
func NewScheduler(syncer driving.Syncer, queue *UploadQueue, interval time.Duration, workers int) *Scheduler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Scheduler{
		syncer:   syncer,
		queue:    queue,
		interval: interval,
		workers:  workers,
	}
}

// Start begins the background loops. Blocks until Stop is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if s.queue != nil {
		s.queue.Start(ctx, s.workers)
	}

	s.wg.Add(1)
	go s.reconcileLoop(ctx)

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
	s.wg.Wait()
	if s.queue != nil {
		s.queue.Stop()
	}
	return nil
}

// Stop gracefully shuts the scheduler down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			report, err := s.syncer.Reconcile(ctx)
			switch {
			case errors.Is(err, domain.ErrReconcileInProgress):
				logger.Debug("scheduler: sweep still running, skipping tick")
			case errors.Is(err, domain.ErrNoAccount):
				logger.Debug("scheduler: no cloud account, skipping sweep")
			case err != nil:
				logger.Warn("scheduler: reconcile: %v", err)
			default:
				logger.Debug("scheduler: sweep done: rebound=%d missing=%d", report.Rebound, report.Missing)
			}
		}
	}
}
