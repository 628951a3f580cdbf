package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"carwash/internal/metrics"
)

var ErrQueueClosed = errors.New("verification queue closed")

// Dispatcher hands a freshly uploaded document to verification without
// waiting for the verdict.
type Dispatcher interface {
	Dispatch(documentID int64) error
}

// DispatcherFunc — synchronous Dispatcher, handy in tests.
type DispatcherFunc func(documentID int64) error

func (f DispatcherFunc) Dispatch(documentID int64) error { return f(documentID) }

// VerificationQueue — bounded channel drained by a fixed worker pool.
type VerificationQueue struct {
	verify  func(ctx context.Context, documentID int64) error
	workers int
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	ch      chan int64
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewVerificationQueue(verify func(ctx context.Context, documentID int64) error, workers, size int, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *VerificationQueue {
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationQueue{
		verify:  verify,
		workers: workers,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		ch:      make(chan int64, size),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *VerificationQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *VerificationQueue) Dispatch(documentID int64) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- documentID:
		q.metrics.QueueDepth(len(q.ch))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work, lets the workers drain what is queued and waits.
func (q *VerificationQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.cancel()
	}
}

func (q *VerificationQueue) worker(ctx context.Context, n int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.ch:
			if !ok {
				return
			}
			q.metrics.QueueDepth(len(q.ch))
			q.run(ctx, n, id)
		}
	}
}

func (q *VerificationQueue) run(ctx context.Context, n int, id int64) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("verification panicked", zap.Int64("document_id", id), zap.Any("panic", r))
		}
	}()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	if err := q.verify(ctx, id); err != nil {
		q.logger.Warn("document verification failed",
			zap.Int("worker", n), zap.Int64("document_id", id), zap.Error(err))
	}
}
