// Package coordinator makes sure each geographic cell is fetched at most once
// at a time and that every finished fetch lands in the badge store.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/placebadge/internal/adapters/mq/queue"
	"github.com/okian/placebadge/internal/adapters/mq/worker"
	"github.com/okian/placebadge/internal/adapters/repository"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// Default coordinator configuration constants.
const (
	defaultWorkerCount = 2
	defaultQueueSize   = 16
	defaultErrorBuffer = 16
)

// Store is the part of the badge store the coordinator needs.
type Store interface {
	Reserve(reading model.LocationReading) repository.ReserveResult
	Release(coord geo.Coordinate)
	Add(ctx context.Context, record model.BadgeRecord) error
}

// Coordinator starts badge fetches off the caller's goroutine and applies
// their results.
type Coordinator struct {
	store   Store
	fetcher worker.Fetcher

	workerCount int
	queueSize   int
	errorBuffer int

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	mu       sync.Mutex
	started  bool
	closed   bool
	pendings map[string]*Pending
	cancel   context.CancelFunc

	errMu     sync.Mutex
	errs      chan error
	errClosed bool

	logger logger.Logger
}

var _ worker.ResultHandler = (*Coordinator)(nil)

// New creates a coordinator. Call Start before EnsureBadge.
func New(store Store, fetcher worker.Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		fetcher:     fetcher,
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		errorBuffer: defaultErrorBuffer,
		pendings:    make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("coordinator")
	}

	c.errs = make(chan error, c.errorBuffer)
	c.queue = queue.NewInMemoryQueue(queue.WithCapacity(c.queueSize))
	c.pool = worker.NewPool(c.workerCount, c.queue, fetcher, c,
		worker.WithPoolLogger(c.logger.Named("worker-pool")))
	return c
}

// Start launches the fetch workers. Fetches inherit ctx; Close cancels them.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.pool.Start(sessionCtx)

	c.logger.Info(ctx, "coordinator started",
		logger.Int("workers", c.pool.Size()),
		logger.Int("queue_size", c.queue.Capacity()),
	)
}

// Errors reports fetch failures. The channel is closed by Close.
func (c *Coordinator) Errors() <-chan error {
	return c.errs
}

// EnsureBadge starts a fetch for reading's cell unless the cell is already
// badged or being fetched. The returned Pending is non-nil only for
// OutcomeFetchStarted. When err is non-nil the outcome is OutcomeUnknown.
func (c *Coordinator) EnsureBadge(ctx context.Context, reading *model.LocationReading) (model.Outcome, *Pending, error) {
	if reading == nil {
		metrics.RecordTrigger(model.OutcomeNoLocation.String())
		return model.OutcomeNoLocation, nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.closed {
		return model.OutcomeUnknown, nil, ErrClosed
	}

	switch res := c.store.Reserve(*reading); res {
	case repository.Present, repository.InFlight:
		metrics.RecordTrigger(model.OutcomeAlreadyPresent.String())
		c.logger.Debug(ctx, "badge already present",
			logger.String("coordinate", reading.Coordinate.String()),
			logger.String("reason", res.String()),
		)
		return model.OutcomeAlreadyPresent, nil, nil
	}

	job := queue.Job{ID: uuid.NewString(), Reading: *reading}
	p := newPending(job.ID)
	c.pendings[job.ID] = p

	if !c.queue.Enqueue(ctx, job) {
		delete(c.pendings, job.ID)
		c.store.Release(reading.Coordinate)
		metrics.RecordErrorByComponent("coordinator", "backpressure")
		c.logger.Warn(ctx, "fetch queue rejected job",
			logger.String("coordinate", reading.Coordinate.String()),
		)
		if err := ctx.Err(); err != nil {
			return model.OutcomeUnknown, nil, fmt.Errorf("enqueue fetch: %w", err)
		}
		return model.OutcomeUnknown, nil, ErrBackpressure
	}

	metrics.RecordFetchStarted()
	metrics.RecordTrigger(model.OutcomeFetchStarted.String())
	c.logger.Info(ctx, "badge fetch started",
		logger.String("job_id", job.ID),
		logger.String("coordinate", reading.Coordinate.String()),
	)
	return model.OutcomeFetchStarted, p, nil
}

// HandleResult applies the outcome of one fetch. It is called by the workers.
func (c *Coordinator) HandleResult(ctx context.Context, job queue.Job, record model.BadgeRecord, err error) {
	if err == nil {
		record = c.prepare(job, record)
		err = c.store.Add(context.WithoutCancel(ctx), record)
	}
	// Add happens before Release so the cell never looks free in between.
	c.store.Release(job.Reading.Coordinate)

	var res Result
	if err != nil {
		res.Err = fmt.Errorf("fetch %s at %s: %w: %w", job.ID, job.Reading.Coordinate, ErrFetchFailed, err)
		metrics.RecordFetchFailed(failureReason(err))
		c.report(ctx, res.Err)
	} else {
		res.Record = record
		metrics.RecordFetchSucceeded()
		c.logger.Info(ctx, "badge stored",
			logger.String("job_id", job.ID),
			logger.String("place", record.PlaceName),
			logger.String("country", record.CountryName),
		)
	}

	c.mu.Lock()
	p, ok := c.pendings[job.ID]
	delete(c.pendings, job.ID)
	c.mu.Unlock()
	if ok {
		p.complete(res)
	}
}

// prepare ties the record to the reading that triggered it.
func (c *Coordinator) prepare(job queue.Job, record model.BadgeRecord) model.BadgeRecord {
	record.Coordinate = job.Reading.Coordinate
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.FetchedAt.IsZero() {
		record.FetchedAt = time.Now()
	}
	return record
}

func (c *Coordinator) report(ctx context.Context, err error) {
	c.logger.Warn(ctx, "badge fetch failed", logger.Error(err))

	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.errClosed {
		return
	}
	select {
	case c.errs <- err:
	default:
		c.logger.Debug(ctx, "error channel full, dropping failure")
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, repository.ErrDuplicateCell):
		return "duplicate_cell"
	default:
		return "provider"
	}
}

// Close stops accepting work, cancels running fetches and waits for the
// workers. Fetches still queued are reported as failures.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if started {
		err = c.pool.Shutdown(ctx)
	} else {
		_ = c.queue.Close()
	}

	c.mu.Lock()
	leftover := c.pendings
	c.pendings = make(map[string]*Pending)
	c.mu.Unlock()
	for _, p := range leftover {
		p.complete(Result{Err: fmt.Errorf("fetch %s: %w: %w", p.ID(), ErrFetchFailed, ErrClosed)})
	}

	c.errMu.Lock()
	c.errClosed = true
	close(c.errs)
	c.errMu.Unlock()

	c.logger.Info(ctx, "coordinator closed", logger.Int("abandoned", len(leftover)))
	return err
}
