package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
)

// fakeSyncer scripts UploadByHash outcomes per hash: each call consumes
// the next outcome, and the last one repeats.
type fakeSyncer struct {
	mu       sync.Mutex
	attempts map[string]int
	script   map[string][]domain.Code
}

var _ driving.Syncer = (*fakeSyncer)(nil)

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{
		attempts: make(map[string]int),
		script:   make(map[string][]domain.Code),
	}
}

func (f *fakeSyncer) UploadByHash(_ context.Context, hash string) (domain.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.attempts[hash]
	f.attempts[hash] = n + 1

	outcomes := f.script[hash]
	if len(outcomes) == 0 {
		return domain.CodeOkUploaded, nil
	}
	code := outcomes[len(outcomes)-1]
	if n < len(outcomes) {
		code = outcomes[n]
	}
	if code.OK() {
		return code, nil
	}
	return code, errors.New(string(code))
}

func (f *fakeSyncer) Reconcile(context.Context) (driving.ReconcileReport, error) {
	return driving.ReconcileReport{}, nil
}

func (f *fakeSyncer) Probe(context.Context) error { return nil }

func (f *fakeSyncer) count(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[hash]
}

func TestUploadQueue_DuplicateSchedulesCollapse(t *testing.T) {
	syncer := newFakeSyncer()
	queue := NewUploadQueue(syncer, time.Millisecond)
	defer queue.Stop()

	queue.ScheduleUpload("hash-a")
	queue.ScheduleUpload("hash-a")
	queue.ScheduleUpload("hash-a")
	queue.Start(context.Background(), 2)

	assert.Eventually(t, func() bool { return syncer.count("hash-a") == 1 },
		time.Second, 5*time.Millisecond)

	// Settled work stays done; no hidden retries fire later.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, syncer.count("hash-a"))
}

func TestUploadQueue_RescheduleAfterTerminalOutcome(t *testing.T) {
	syncer := newFakeSyncer()
	queue := NewUploadQueue(syncer, time.Millisecond)
	defer queue.Stop()
	queue.Start(context.Background(), 1)

	queue.ScheduleUpload("hash-b")
	assert.Eventually(t, func() bool { return syncer.count("hash-b") == 1 },
		time.Second, 5*time.Millisecond)

	// The item is no longer pending, so a fresh schedule runs again.
	queue.ScheduleUpload("hash-b")
	assert.Eventually(t, func() bool { return syncer.count("hash-b") == 2 },
		time.Second, 5*time.Millisecond)
}

func TestUploadQueue_RetriesOnlyNetworkBackoff(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.script["transient"] = []domain.Code{
		domain.CodeNetworkBackoff,
		domain.CodeNetworkBackoff,
		domain.CodeOkUploaded,
	}
	syncer.script["denied"] = []domain.Code{domain.CodePermissionDeniedAuth}

	queue := NewUploadQueue(syncer, time.Millisecond)
	defer queue.Stop()
	queue.Start(context.Background(), 2)

	queue.ScheduleUpload("transient")
	queue.ScheduleUpload("denied")

	assert.Eventually(t, func() bool { return syncer.count("transient") == 3 },
		2*time.Second, 5*time.Millisecond)

	// The auth failure is terminal: exactly one attempt, no backoff retry.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, syncer.count("denied"))
}

func TestUploadQueue_StopIsIdempotentAndFinal(t *testing.T) {
	syncer := newFakeSyncer()
	queue := NewUploadQueue(syncer, time.Millisecond)
	queue.Start(context.Background(), 1)

	queue.Stop()
	queue.Stop()

	queue.ScheduleUpload("hash-c")
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, syncer.count("hash-c"))
}

func TestUploadQueue_StopCancelsPendingRetryTimers(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.script["stuck"] = []domain.Code{domain.CodeNetworkBackoff}

	queue := NewUploadQueue(syncer, time.Hour)
	queue.Start(context.Background(), 1)
	queue.ScheduleUpload("stuck")

	assert.Eventually(t, func() bool { return syncer.count("stuck") == 1 },
		time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		queue.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a pending retry timer")
	}
}
