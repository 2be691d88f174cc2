package worker

import (
	"context"
	"errors"
	"sync"

	"booking-payment-service/internal/service"
	"booking-payment-service/internal/util"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when a verification cannot be scheduled.
var ErrQueueFull = errors.New("verification queue full")

// VerificationQueue is the in-process job queue feeding the worker pool. It
// implements service.VerificationScheduler. Jobs are not durable: a crash
// mid-retry is recovered by a fresh submission for the same booking/phase,
// which the guard rules permit while the paid flag is unset.
type VerificationQueue struct {
	jobs chan service.VerificationJob
}

// NewVerificationQueue creates a queue with a bounded buffer.
func NewVerificationQueue(size int) *VerificationQueue {
	return &VerificationQueue{jobs: make(chan service.VerificationJob, size)}
}

// Schedule enqueues a job without blocking the submission path.
func (q *VerificationQueue) Schedule(job service.VerificationJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// VerificationWorker drains the queue with a fixed-size pool of goroutines,
// one verification per goroutine at a time.
type VerificationWorker struct {
	queue       *VerificationQueue
	reconciler  *service.Reconciler
	concurrency int
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewVerificationWorker creates a new verification worker pool.
func NewVerificationWorker(queue *VerificationQueue, reconciler *service.Reconciler, concurrency int) *VerificationWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &VerificationWorker{
		queue:       queue,
		reconciler:  reconciler,
		concurrency: concurrency,
		logger:      util.GetLogger(),
	}
}

// Start runs the pool until the context is cancelled.
func (w *VerificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting verification workers", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-w.queue.jobs:
					if err := w.reconciler.Verify(ctx, job); err != nil {
						w.logger.Error("Verification ended with error",
							zap.String("booking", job.BookingReference),
							zap.String("tx_hash", job.TxHash),
							zap.Error(err))
					}
				}
			}
		}()
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop waits for in-flight verifications to finish.
func (w *VerificationWorker) Stop() {
	w.logger.Info("Stopping verification workers")
	w.wg.Wait()
}
