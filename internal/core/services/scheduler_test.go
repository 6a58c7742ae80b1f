package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
)

type countingSyncer struct {
	mu         sync.Mutex
	reconciles int
	err        error
}

var _ driving.Syncer = (*countingSyncer)(nil)

func (c *countingSyncer) UploadByHash(context.Context, string) (domain.Code, error) {
	return domain.CodeOkUploaded, nil
}

func (c *countingSyncer) Reconcile(context.Context) (driving.ReconcileReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciles++
	return driving.ReconcileReport{}, c.err
}

func (c *countingSyncer) Probe(context.Context) error { return nil }

func (c *countingSyncer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconciles
}

func startScheduler(t *testing.T, scheduler *Scheduler) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = scheduler.Start(context.Background())
	}()
	t.Cleanup(func() {
		scheduler.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
}

func TestSchedulerRunsPeriodicSweeps(t *testing.T) {
	syncer := &countingSyncer{}
	scheduler := NewScheduler(syncer, nil, 10*time.Millisecond, 1)
	startScheduler(t, scheduler)

	assert.Eventually(t, func() bool { return syncer.count() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerToleratesSkippedSweeps(t *testing.T) {
	syncer := &countingSyncer{err: domain.ErrReconcileInProgress}
	scheduler := NewScheduler(syncer, nil, 10*time.Millisecond, 1)
	startScheduler(t, scheduler)

	// The loop keeps ticking even when every sweep reports busy.
	assert.Eventually(t, func() bool { return syncer.count() >= 3 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStartDrivesUploadQueue(t *testing.T) {
	uploads := newFakeSyncer()
	queue := NewUploadQueue(uploads, time.Millisecond)
	scheduler := NewScheduler(&countingSyncer{}, queue, time.Hour, 1)
	startScheduler(t, scheduler)

	queue.ScheduleUpload("hash-s")
	assert.Eventually(t, func() bool { return uploads.count("hash-s") == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopBeforeStartIsHarmless(t *testing.T) {
	scheduler := NewScheduler(&countingSyncer{}, nil, time.Hour, 1)
	scheduler.Stop()
}
