package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/placebadge/internal/adapters/mq/queue"
	worker "github.com/okian/placebadge/internal/adapters/mq/worker"
	geo "github.com/okian/placebadge/internal/domain/geo"
	model "github.com/okian/placebadge/internal/domain/model"
	logging "github.com/okian/placebadge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs      chan queue.Job
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		jobs: make(chan queue.Job, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) addJob(id string, lat, lon float64) {
	mq.jobs <- queue.Job{ID: id, Reading: model.NewLocationReading(lat, lon, time.Now(), "gps")}
}

type mockFetcher struct {
	mu     sync.Mutex
	errors map[geo.Coordinate]error
	calls  int
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{errors: make(map[geo.Coordinate]error)}
}

func (mf *mockFetcher) Fetch(ctx context.Context, c geo.Coordinate) (model.BadgeRecord, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.calls++
	if err, ok := mf.errors[c]; ok {
		return model.BadgeRecord{}, err
	}
	return model.BadgeRecord{Coordinate: c, PlaceName: "Mountain View", CountryName: "United States"}, nil
}

func (mf *mockFetcher) setError(c geo.Coordinate, err error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.errors[c] = err
}

func (mf *mockFetcher) callCount() int {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.calls
}

type result struct {
	job    queue.Job
	record model.BadgeRecord
	err    error
}

type mockHandler struct {
	results chan result
}

func newMockHandler() *mockHandler {
	return &mockHandler{results: make(chan result, 10)}
}

func (mh *mockHandler) HandleResult(ctx context.Context, job queue.Job, record model.BadgeRecord, err error) {
	mh.results <- result{job: job, record: record, err: err}
}

func (mh *mockHandler) next() (result, bool) {
	select {
	case r := <-mh.results:
		return r, true
	case <-time.After(time.Second):
		return result{}, false
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		fetcher := newMockFetcher()
		handler := newMockHandler()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, fetcher, handler, worker.WithName("test-worker"), worker.WithLogger(logging.Nop()))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, fetcher, handler)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And a fetch succeeds", func() {
				q.addJob("job-1", 37.422, -122.084)
				r, ok := handler.next()

				convey.Convey("Then the record is handed to the handler", func() {
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(r.err, convey.ShouldBeNil)
					convey.So(r.job.ID, convey.ShouldEqual, "job-1")
					convey.So(r.record.PlaceName, convey.ShouldEqual, "Mountain View")
				})
			})

			convey.Convey("And a fetch fails", func() {
				boom := errors.New("provider down")
				fetcher.setError(geo.Coordinate{Lat: 0, Lon: 0}, boom)
				q.addJob("job-2", 0, 0)
				r, ok := handler.next()

				convey.Convey("Then the error is handed to the handler", func() {
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(errors.Is(r.err, boom), convey.ShouldBeTrue)
					convey.So(r.job.ID, convey.ShouldEqual, "job-2")
				})
			})

			convey.Convey("And the queue is closed", func() {
				_ = q.Close()

				convey.Convey("Then shutdown completes", func() {
					sctx, scancel := context.WithTimeout(context.Background(), time.Second)
					defer scancel()
					convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the worker context is already cancelled", func() {
			w := worker.NewInMemoryWorker(q, fetcher, handler)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			q.addJob("job-3", 38.996667, -76.9275)
			_ = q.Close()
			go w.Run(ctx)
			r, ok := handler.next()

			convey.Convey("Then the job is reported as cancelled without fetching", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(errors.Is(r.err, context.Canceled), convey.ShouldBeTrue)
				convey.So(fetcher.callCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutdown times out", func() {
			w := worker.NewInMemoryWorker(q, fetcher, handler)
			go w.Run(context.Background())

			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer scancel()
			err := w.Shutdown(sctx)
			_ = q.Close()

			convey.Convey("Then it reports the deadline", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		fetcher := newMockFetcher()
		handler := newMockHandler()

		convey.Convey("When created with a non-positive size", func() {
			p := worker.NewPool(0, q, fetcher, handler)

			convey.Convey("Then it falls back to at least one worker", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When started and fed jobs", func() {
			p := worker.NewPool(3, q, fetcher, handler)
			ctx := context.Background()
			p.Start(ctx)

			for _, id := range []string{"a", "b", "c", "d"} {
				convey.So(q.Enqueue(ctx, queue.Job{ID: id, Reading: model.NewLocationReading(1, 2, time.Now(), "gps")}), convey.ShouldBeTrue)
			}
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then shutdown drains every queued job", func() {
				convey.So(p.Size(), convey.ShouldEqual, 3)
				convey.So(len(handler.results), convey.ShouldEqual, 4)
				convey.So(fetcher.callCount(), convey.ShouldEqual, 4)
			})
		})
	})
}

type recordingLogger struct {
	mu    *sync.Mutex
	names *[]string
	name  string
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, names: &[]string{}}
}

func (l recordingLogger) record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.names = append(*l.names, l.name)
}

func (l recordingLogger) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), *l.names...)
}

func (l recordingLogger) Info(context.Context, string, ...logging.Field)  { l.record() }
func (l recordingLogger) Error(context.Context, string, ...logging.Field) { l.record() }
func (l recordingLogger) Debug(context.Context, string, ...logging.Field) { l.record() }
func (l recordingLogger) Warn(context.Context, string, ...logging.Field)  { l.record() }
func (l recordingLogger) Fatal(context.Context, string, ...logging.Field) { l.record() }
func (l recordingLogger) Named(name string) logging.Logger {
	l.name = name
	return l
}

func TestPool_Logger(t *testing.T) {
	convey.Convey("Given a pool built with its own logger", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		fetcher := newMockFetcher()
		bad := geo.Coordinate{Lat: 5, Lon: 5}
		fetcher.setError(bad, errors.New("geonames down"))
		handler := newMockHandler()
		rec := newRecordingLogger()
		p := worker.NewPool(1, q, fetcher, handler, worker.WithPoolLogger(rec))

		convey.Convey("When a worker logs a failed fetch", func() {
			ctx := context.Background()
			p.Start(ctx)
			convey.So(q.Enqueue(ctx, queue.Job{ID: "bad", Reading: model.NewLocationReading(5, 5, time.Now(), "gps")}), convey.ShouldBeTrue)
			_, ok := handler.next()
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the entry goes through the pool's logger under the worker's name", func() {
				convey.So(rec.seen(), convey.ShouldContain, "worker-0")
			})
		})
	})
}

func TestPool_ShutdownDeadline(t *testing.T) {
	convey.Convey("Given a pool whose worker is stuck in a fetch", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		release := make(chan struct{})
		defer close(release)
		handler := newMockHandler()
		p := worker.NewPool(1, q, blockingFetcher{release: release}, handler, worker.WithPoolLogger(logging.Nop()))
		ctx := context.Background()
		p.Start(ctx)
		convey.So(q.Enqueue(ctx, queue.Job{ID: "stuck", Reading: model.NewLocationReading(1, 1, time.Now(), "gps")}), convey.ShouldBeTrue)

		convey.Convey("When shutdown is given a short deadline", func() {
			sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			start := time.Now()
			err := p.Shutdown(sctx)

			convey.Convey("Then it returns at that deadline", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(time.Since(start), convey.ShouldBeLessThan, 5*time.Second)
			})
		})
	})
}

// blockingFetcher waits for release and ignores ctx.
type blockingFetcher struct {
	release chan struct{}
}

func (f blockingFetcher) Fetch(_ context.Context, c geo.Coordinate) (model.BadgeRecord, error) {
	<-f.release
	return model.BadgeRecord{Coordinate: c}, nil
}
