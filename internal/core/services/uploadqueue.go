package services

import (
	"context"
	"sync"
	"time"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// Upload queue defaults.
const (
	defaultQueueCapacity = 256
	defaultBackoffBase   = 30 * time.Second
	defaultBackoffMax    = 1 * time.Hour
)

// Ensure UploadQueue implements the scheduler port.
var _ driven.UploadScheduler = (*UploadQueue)(nil)

// UploadQueue is the in-process upload scheduler. Work identity derives
// from the content hash: scheduling a hash that is already pending is a
// no-op (keep policy), so duplicate shares collapse to one work item.
// Only network_backoff outcomes are retried, with exponential backoff;
// all other failures are terminal for the attempt and left to a future
// schedule or the reconciliation sweep.
type UploadQueue struct {
	syncer      driving.Syncer
	backoffBase time.Duration
	backoffMax  time.Duration

	mu      sync.Mutex
	pending map[string]int // content hash -> completed attempts
	timers  []*time.Timer
	started bool
	stopped bool

	work   chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewUploadQueue creates a queue that feeds the syncer. backoffBase <= 0
// selects the default.
func NewUploadQueue(syncer driving.Syncer, backoffBase time.Duration) *UploadQueue {
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	return &UploadQueue{
		syncer:      syncer,
		backoffBase: backoffBase,
		backoffMax:  defaultBackoffMax,
		pending:     make(map[string]int),
		work:        make(chan string, defaultQueueCapacity),
		stopCh:      make(chan struct{}),
	}
}

// ScheduleUpload enqueues upload work for the content hash. Safe to call
// from any goroutine, before or after Start, and repeatedly for the same
// hash.
func (q *UploadQueue) ScheduleUpload(contentHash string) {
	q.mu.Lock()
	if _, exists := q.pending[contentHash]; exists || q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending[contentHash] = 0
	q.mu.Unlock()

	q.push(contentHash)
}

// push hands the hash to a worker without ever blocking the caller.
func (q *UploadQueue) push(contentHash string) {
	select {
	case q.work <- contentHash:
	default:
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			select {
			case q.work <- contentHash:
			case <-q.stopCh:
			}
		}()
	}
}

// Start launches the worker goroutines. Idempotent; the queue cannot be
// restarted after Stop.
func (q *UploadQueue) Start(ctx context.Context, workers int) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop shuts the workers down and waits for in-flight attempts. Pending
// work is dropped: an abandoned upload is safe because no partial state
// is durable until the verified binding upsert.
func (q *UploadQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	timers := q.timers
	q.timers = nil
	close(q.stopCh)
	q.mu.Unlock()

	for _, t := range timers {
		if t.Stop() {
			q.wg.Done()
		}
	}
	q.wg.Wait()
}

func (q *UploadQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case hash := <-q.work:
			q.attempt(ctx, hash)
		}
	}
}

func (q *UploadQueue) attempt(ctx context.Context, hash string) {
	code, err := q.syncer.UploadByHash(ctx, hash)
	if err == nil || code != domain.CodeNetworkBackoff {
		// Terminal for this work item, success or not.
		q.mu.Lock()
		delete(q.pending, hash)
		q.mu.Unlock()
		if err != nil {
			logger.Warn("upload %s: terminal failure %s: %v", hash, code, err)
		}
		return
	}

	// Transient: retry with exponential backoff, keeping the hash pending
	// so re-schedules stay collapsed onto this item.
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending[hash]++
	attempts := q.pending[hash]

	delay := q.backoffBase << (attempts - 1)
	if delay > q.backoffMax || delay <= 0 {
		delay = q.backoffMax
	}

	q.wg.Add(1)
	timer := time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.push(hash)
	})
	q.timers = append(q.timers, timer)
	q.mu.Unlock()

	logger.Debug("upload %s: backing off %s after attempt %d", hash, delay, attempts)
}
