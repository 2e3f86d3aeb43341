package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner owns the single consumer goroutine that drains a Queue. It is
// started lazily on the first Submit and stopped cooperatively: Shutdown
// cancels the dequeue wait but never interrupts a job already in flight.
type Runner struct {
	log   *slog.Logger
	queue *Queue
	proc  Processor

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a Runner consuming q with p. The consumer goroutine is
// not launched until the first Submit or EnsureStarted call.
func NewRunner(logger *slog.Logger, q *Queue, p Processor) *Runner {
	return &Runner{
		log:   logger,
		queue: q,
		proc:  p,
	}
}

// Submit enqueues an item and makes sure the consumer is running.
func (r *Runner) Submit(ctx context.Context, item WorkItem) {
	r.EnsureStarted(ctx)
	r.queue.Enqueue(item)
}

// EnsureStarted launches the consumer goroutine if it is not already
// running. Calling it on a running Runner is a no-op.
func (r *Runner) EnsureStarted(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true
	go r.run(runCtx)
	r.log.Info("worker started")
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			r.log.Debug("worker stopping", "reason", err)
			return
		}
		jobLog := r.log.With("job_id", item.Job.ID)
		jobLog.Info("processing job", "file", item.Job.OriginalFilename, "email", item.Job.Email)
		start := time.Now()
		// A job runs to completion once dequeued; shutdown only interrupts
		// the dequeue wait, so the processing context must not be cancellable.
		if err := r.proc.Process(context.WithoutCancel(ctx), item); err != nil {
			jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
		} else {
			jobLog.Info("job processed", "duration", time.Since(start))
		}
		// Cleanup of the uploaded audio is attempted regardless of outcome.
		// Failures are logged but never fail the job; leaks show up here.
		if item.Cleanup != nil {
			if err := item.Cleanup(); err != nil {
				jobLog.Warn("upload cleanup failed", "err", err)
			}
		}
	}
}

// Shutdown stops the consumer and waits up to grace for the in-flight job
// to finish. A zero or negative grace waits without a deadline.
func (r *Runner) Shutdown(grace time.Duration) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.started = false
	r.mu.Unlock()

	cancel()

	if grace <= 0 {
		<-done
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		r.log.Warn("worker shutdown grace elapsed; job may still be running")
	}
}
