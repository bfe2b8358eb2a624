package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/placebadge/internal/adapters/repository"
	"github.com/okian/placebadge/internal/domain/coordinator"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	logging "github.com/okian/placebadge/pkg/logger"
)

var errNoPlace = errors.New("no place found")

// stubFetcher returns a badge for every coordinate except (0,0). When gate is
// set, each fetch waits for it (or for ctx, unless ignoreCtx) before returning.
type stubFetcher struct {
	gate      chan struct{}
	entered   chan struct{}
	calls     atomic.Int32
	ignoreCtx bool
}

func newStubFetcher(gated bool) *stubFetcher {
	f := &stubFetcher{entered: make(chan struct{}, 64)}
	if gated {
		f.gate = make(chan struct{})
	}
	return f
}

func (f *stubFetcher) Fetch(ctx context.Context, c geo.Coordinate) (model.BadgeRecord, error) {
	f.calls.Add(1)
	f.entered <- struct{}{}
	if f.gate != nil && f.ignoreCtx {
		<-f.gate
	} else if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.BadgeRecord{}, ctx.Err()
		}
	}
	if c == (geo.Coordinate{}) {
		return model.BadgeRecord{}, errNoPlace
	}
	return model.BadgeRecord{
		PlaceName:   fmt.Sprintf("place %s", c),
		CountryName: "United States",
		FlagURL:     "http://www.geonames.org/flags/x/us.gif",
	}, nil
}

func (f *stubFetcher) waitEntered() bool {
	select {
	case <-f.entered:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func reading(lat, lon float64) *model.LocationReading {
	r := model.NewLocationReading(lat, lon, time.Now(), "network")
	return &r
}

func waitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestCoordinator_EnsureBadge(t *testing.T) {
	convey.Convey("Given a started coordinator with an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(false)
		c := coordinator.New(store, fetcher, coordinator.WithLogger(logging.Nop()))
		c.Start(ctx)
		defer func() { _ = c.Close(ctx) }()

		convey.Convey("When there is no reading", func() {
			outcome, p, err := c.EnsureBadge(ctx, nil)

			convey.Convey("Then nothing is fetched", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(outcome, convey.ShouldEqual, model.OutcomeNoLocation)
				convey.So(p, convey.ShouldBeNil)
				convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a badge is requested for a new cell", func() {
			r := reading(37.422, -122.084)
			outcome, p, err := c.EnsureBadge(ctx, r)
			convey.So(err, convey.ShouldBeNil)
			convey.So(outcome, convey.ShouldEqual, model.OutcomeFetchStarted)
			convey.So(p, convey.ShouldNotBeNil)

			wctx, cancel := waitCtx()
			defer cancel()
			record, werr := p.Wait(wctx)

			convey.Convey("Then the badge is stored under the reading's coordinate", func() {
				convey.So(werr, convey.ShouldBeNil)
				convey.So(record.Coordinate, convey.ShouldResemble, r.Coordinate)
				convey.So(record.ID, convey.ShouldNotBeEmpty)
				convey.So(record.FetchedAt.IsZero(), convey.ShouldBeFalse)
				convey.So(store.Len(), convey.ShouldEqual, 1)
				convey.So(store.InFlight(), convey.ShouldEqual, 0)
				convey.So(store.Intersects(r), convey.ShouldBeTrue)
			})

			convey.Convey("Then asking again for the same cell does not fetch again", func() {
				again, p2, err := c.EnsureBadge(ctx, reading(37.4225, -122.0845))
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldEqual, model.OutcomeAlreadyPresent)
				convey.So(p2, convey.ShouldBeNil)
				convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 1)
				convey.So(store.Len(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then a far away cell gets its own badge", func() {
				far, p3, err := c.EnsureBadge(ctx, reading(38.996667, -76.9275))
				convey.So(err, convey.ShouldBeNil)
				convey.So(far, convey.ShouldEqual, model.OutcomeFetchStarted)
				_, err = p3.Wait(wctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Len(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the fetch for (0,0) fails", func() {
			outcome, p, err := c.EnsureBadge(ctx, reading(0, 0))
			convey.So(err, convey.ShouldBeNil)
			convey.So(outcome, convey.ShouldEqual, model.OutcomeFetchStarted)

			wctx, cancel := waitCtx()
			defer cancel()
			_, werr := p.Wait(wctx)

			convey.Convey("Then the failure is reported and nothing is stored", func() {
				convey.So(errors.Is(werr, coordinator.ErrFetchFailed), convey.ShouldBeTrue)
				convey.So(errors.Is(werr, errNoPlace), convey.ShouldBeTrue)
				convey.So(store.Len(), convey.ShouldEqual, 0)
				convey.So(store.InFlight(), convey.ShouldEqual, 0)

				var reported error
				select {
				case reported = <-c.Errors():
				case <-time.After(time.Second):
				}
				convey.So(errors.Is(reported, coordinator.ErrFetchFailed), convey.ShouldBeTrue)
			})

			convey.Convey("Then a later request may retry", func() {
				retry, p2, err := c.EnsureBadge(ctx, reading(0, 0))
				convey.So(err, convey.ShouldBeNil)
				convey.So(retry, convey.ShouldEqual, model.OutcomeFetchStarted)
				_, _ = p2.Wait(wctx)
				convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 2)
			})
		})
	})
}

func TestCoordinator_SingleFlight(t *testing.T) {
	convey.Convey("Given a coordinator whose fetches block", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(true)
		c := coordinator.New(store, fetcher, coordinator.WithLogger(logging.Nop()), coordinator.WithWorkerCount(4))
		c.Start(ctx)
		defer func() { _ = c.Close(ctx) }()

		convey.Convey("When a second request arrives while the first is in flight", func() {
			first, p, err := c.EnsureBadge(ctx, reading(37.422, -122.084))
			convey.So(err, convey.ShouldBeNil)
			convey.So(fetcher.waitEntered(), convey.ShouldBeTrue)

			second, p2, err := c.EnsureBadge(ctx, reading(37.422, -122.084))

			convey.Convey("Then only one fetch runs", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(first, convey.ShouldEqual, model.OutcomeFetchStarted)
				convey.So(second, convey.ShouldEqual, model.OutcomeAlreadyPresent)
				convey.So(p2, convey.ShouldBeNil)
				convey.So(store.InFlight(), convey.ShouldEqual, 1)

				close(fetcher.gate)
				wctx, cancel := waitCtx()
				defer cancel()
				_, werr := p.Wait(wctx)
				convey.So(werr, convey.ShouldBeNil)
				convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 1)
				convey.So(store.Len(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When many callers race for the same cell", func() {
			var started atomic.Int32
			var pending *coordinator.Pending
			var pmu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					outcome, p, err := c.EnsureBadge(ctx, reading(52.52, 13.405))
					if err == nil && outcome == model.OutcomeFetchStarted {
						started.Add(1)
						pmu.Lock()
						pending = p
						pmu.Unlock()
					}
				}()
			}
			wg.Wait()
			close(fetcher.gate)

			convey.Convey("Then exactly one fetch is started", func() {
				convey.So(int(started.Load()), convey.ShouldEqual, 1)
				wctx, cancel := waitCtx()
				defer cancel()
				_, err := pending.Wait(wctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 1)
				convey.So(store.Len(), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestCoordinator_Backpressure(t *testing.T) {
	convey.Convey("Given a coordinator with one worker and a one-slot queue", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(true)
		c := coordinator.New(store, fetcher,
			coordinator.WithLogger(logging.Nop()),
			coordinator.WithWorkerCount(1),
			coordinator.WithQueueSize(1),
		)
		c.Start(ctx)
		defer func() { _ = c.Close(ctx) }()

		_, _, err := c.EnsureBadge(ctx, reading(10, 10))
		convey.So(err, convey.ShouldBeNil)
		convey.So(fetcher.waitEntered(), convey.ShouldBeTrue)
		_, _, err = c.EnsureBadge(ctx, reading(20, 20))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When a third cell is requested", func() {
			outcome, p, err := c.EnsureBadge(ctx, reading(30, 30))

			convey.Convey("Then it is rejected and its marker released", func() {
				convey.So(errors.Is(err, coordinator.ErrBackpressure), convey.ShouldBeTrue)
				convey.So(outcome, convey.ShouldEqual, model.OutcomeUnknown)
				convey.So(p, convey.ShouldBeNil)
				convey.So(store.InFlight(), convey.ShouldEqual, 2)
			})
		})
	})
}

func TestCoordinator_Close(t *testing.T) {
	convey.Convey("Given a coordinator with a fetch in flight", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(true)
		c := coordinator.New(store, fetcher, coordinator.WithLogger(logging.Nop()))
		c.Start(ctx)

		_, p, err := c.EnsureBadge(ctx, reading(37.422, -122.084))
		convey.So(err, convey.ShouldBeNil)
		convey.So(fetcher.waitEntered(), convey.ShouldBeTrue)

		convey.Convey("When the coordinator is closed", func() {
			convey.So(c.Close(ctx), convey.ShouldBeNil)

			convey.Convey("Then the fetch fails as cancelled and nothing is stored", func() {
				wctx, cancel := waitCtx()
				defer cancel()
				_, werr := p.Wait(wctx)
				convey.So(errors.Is(werr, coordinator.ErrFetchFailed), convey.ShouldBeTrue)
				convey.So(errors.Is(werr, context.Canceled), convey.ShouldBeTrue)
				convey.So(store.Len(), convey.ShouldEqual, 0)
				convey.So(store.InFlight(), convey.ShouldEqual, 0)
			})

			convey.Convey("Then new requests are refused", func() {
				outcome, _, err := c.EnsureBadge(ctx, reading(1, 1))
				convey.So(errors.Is(err, coordinator.ErrClosed), convey.ShouldBeTrue)
				convey.So(outcome, convey.ShouldEqual, model.OutcomeUnknown)
			})

			convey.Convey("Then the error channel is closed after draining", func() {
				for range c.Errors() {
				}
				convey.So(c.Close(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a coordinator that was never started", t, func() {
		c := coordinator.New(repository.NewBadgeStore(repository.WithLogger(logging.Nop())), newStubFetcher(false), coordinator.WithLogger(logging.Nop()))

		convey.Convey("Then requests are refused and Close succeeds", func() {
			_, _, err := c.EnsureBadge(context.Background(), reading(1, 1))
			convey.So(errors.Is(err, coordinator.ErrClosed), convey.ShouldBeTrue)
			convey.So(c.Close(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestCoordinator_QueueBound(t *testing.T) {
	convey.Convey("Given one worker busy on a fetch and a one-slot queue", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(true)
		c := coordinator.New(store, fetcher,
			coordinator.WithLogger(logging.Nop()),
			coordinator.WithWorkerCount(1),
			coordinator.WithQueueSize(1),
		)
		c.Start(ctx)
		defer func() { _ = c.Close(ctx) }()

		var admitted int
		for i := 0; i < 5; i++ {
			_, _, err := c.EnsureBadge(ctx, reading(float64(10*(i+1)), 10))
			if err == nil {
				admitted++
			}
			if i == 0 {
				convey.So(fetcher.waitEntered(), convey.ShouldBeTrue)
			}
		}

		convey.Convey("Then only the running fetch and one queued fetch are admitted", func() {
			convey.So(admitted, convey.ShouldEqual, 2)
			convey.So(store.InFlight(), convey.ShouldEqual, 2)
			convey.So(int(fetcher.calls.Load()), convey.ShouldEqual, 1)
		})
	})
}

func TestCoordinator_CloseDeadline(t *testing.T) {
	convey.Convey("Given a fetch that ignores cancellation", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))
		fetcher := newStubFetcher(true)
		fetcher.ignoreCtx = true
		defer close(fetcher.gate)
		c := coordinator.New(store, fetcher, coordinator.WithLogger(logging.Nop()))
		c.Start(ctx)

		_, _, err := c.EnsureBadge(ctx, reading(37.422, -122.084))
		convey.So(err, convey.ShouldBeNil)
		convey.So(fetcher.waitEntered(), convey.ShouldBeTrue)

		convey.Convey("When Close is given a short deadline", func() {
			closeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			start := time.Now()
			err := c.Close(closeCtx)

			convey.Convey("Then it gives up at the caller's deadline", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(time.Since(start), convey.ShouldBeLessThan, 5*time.Second)
			})
		})
	})
}

// The tests in this package never initialize the global logger, so any
// component that falls back to it would panic here.
func TestCoordinator_InjectedLogger(t *testing.T) {
	convey.Convey("Given only an injected logger", t, func() {
		ctx := context.Background()
		store := repository.NewBadgeStore(repository.WithLogger(logging.Nop()))

		convey.Convey("Then the coordinator and its workers run without the global logger", func() {
			convey.So(func() {
				c := coordinator.New(store, newStubFetcher(false),
					coordinator.WithLogger(logging.Nop()),
					coordinator.WithWorkerCount(3),
				)
				c.Start(ctx)
				_, p, err := c.EnsureBadge(ctx, reading(0, 0))
				if err == nil && p != nil {
					wctx, cancel := waitCtx()
					defer cancel()
					_, _ = p.Wait(wctx)
				}
				_ = c.Close(ctx)
			}, convey.ShouldNotPanic)
		})
	})
}
