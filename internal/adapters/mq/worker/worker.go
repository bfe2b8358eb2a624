// Package worker runs badge fetches off the triggering goroutine.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/placebadge/internal/adapters/mq/queue"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Fetcher downloads the badge for a coordinate. Implementations must honor
// ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, c geo.Coordinate) (model.BadgeRecord, error)
}

// ResultHandler applies the outcome of one fetch. err is non-nil when the
// fetch failed or was cancelled.
type ResultHandler interface {
	HandleResult(ctx context.Context, job Job, record model.BadgeRecord, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes fetch jobs.
type Worker interface {
	// Run consumes jobs until the queue is closed and drained. Once ctx is
	// done, remaining jobs are reported as cancelled without being fetched.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	fetcher Fetcher
	handler ResultHandler
	name    string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, fetcher Fetcher, handler ResultHandler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		fetcher: fetcher,
		handler: handler,
		name:    "worker",
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// jobs keep flowing after ctx ends so each one is reported
	for job := range w.queue.Dequeue(ctx) {
		w.processJob(ctx, job)
	}
}

// Shutdown waits for the worker loop to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob fetches one badge and hands the result over.
func (w *InMemoryWorker) processJob(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := ctx.Err(); err != nil {
		w.handler.HandleResult(ctx, job, model.BadgeRecord{}, fmt.Errorf("fetch not started: %w", err))
		return
	}

	record, err := w.fetcher.Fetch(ctx, job.Reading.Coordinate)
	metrics.RecordFetchLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("worker", "fetch_error")
		w.logger.Warn(ctx, "badge fetch failed",
			logger.String("job_id", job.ID),
			logger.String("coordinate", job.Reading.Coordinate.String()),
			logger.Error(err),
		)
	}
	w.handler.HandleResult(ctx, job, record, err)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count falls back to a
// small default; fetches are I/O bound and a session produces few of them.
func NewPool(workerCount int, q Queue, fetcher Fetcher, handler ResultHandler, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = min(defaultWorkerCount, runtime.NumCPU())
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = NewInMemoryWorker(q, fetcher, handler, WithName(name), WithLogger(p.logger.Named(name)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for every worker to drain it, up to
// ctx's deadline or poolShutdownTimeout, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
