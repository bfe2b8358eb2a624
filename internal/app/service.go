// Package service wires the location tracker, badge store and download
// coordinator into one session and implements the dependencies required by
// the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/placebadge/internal/adapters/fetcher"
	"github.com/okian/placebadge/internal/adapters/mocklocation"
	"github.com/okian/placebadge/internal/adapters/mq/worker"
	"github.com/okian/placebadge/internal/adapters/repository"
	"github.com/okian/placebadge/internal/domain/coordinator"
	"github.com/okian/placebadge/internal/domain/freshness"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/internal/domain/tracker"
	"github.com/okian/placebadge/internal/domain/types"
	"github.com/okian/placebadge/pkg/logger"
)

// Messages shown to users for trigger outcomes.
const (
	MessageNoLocation     = "No location available yet"
	MessageAlreadyPresent = "You already have this location badge"
	MessageFetchStarted   = "Downloading badge for this location"
)

// Service errors, shared with transports through the model package.
var (
	// ErrNoLocationAvailable means there is no usable reading to badge.
	ErrNoLocationAvailable = model.ErrNoLocationAvailable
	// ErrNotStarted means the service must be started first.
	ErrNotStarted = model.ErrNotStarted
	// ErrInvalidCoordinate means a reported coordinate was NaN or infinite.
	ErrInvalidCoordinate = model.ErrInvalidCoordinate
)

// Service implements the API dependencies for one badge-collecting session.
type Service struct {
	mu sync.RWMutex

	// Core components
	arbiter     *freshness.Arbiter
	tracker     *tracker.Tracker
	store       *repository.BadgeStore
	fetcher     worker.Fetcher
	coordinator *coordinator.Coordinator
	mock        *mocklocation.Provider

	// Configuration
	cellRadiusM    float64
	stalenessBound time.Duration
	workerCount    int
	queueSize      int
	providerName   string
	clock          freshness.Clock

	// State
	started      bool
	drained      chan struct{}
	fetchFailed  atomic.Int64
	lastFailure  atomic.Value // string
	triggerCount atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetcher sets the badge fetcher. Defaults to the public place provider.
func WithFetcher(f worker.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithCellRadius sets the distance in meters within which readings share a badge.
func WithCellRadius(m float64) Option {
	return func(s *Service) {
		if m > 0 {
			s.cellRadiusM = m
		}
	}
}

// WithStalenessBound sets the age past which a reading is not used.
func WithStalenessBound(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stalenessBound = d
		}
	}
}

// WithWorkerCount sets the number of fetch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many fetches may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithProviderName sets the provider recorded on readings reported without one.
func WithProviderName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.providerName = name
		}
	}
}

// WithClock sets the time source used for reading ages.
func WithClock(clock freshness.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service. Readings may be observed right away; badge
// requests need Start.
func New(opts ...Option) *Service {
	s := &Service{
		cellRadiusM:    1000,
		stalenessBound: freshness.DefaultStalenessBound,
		workerCount:    2,
		queueSize:      16,
		providerName:   "network",
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.fetcher == nil {
		s.fetcher = fetcher.NewHTTPFetcher()
	}

	s.arbiter = freshness.NewArbiter(
		freshness.WithClock(s.clock),
		freshness.WithStalenessBound(s.stalenessBound),
	)
	s.tracker = tracker.New(s.arbiter)
	s.store = repository.NewBadgeStore(
		repository.WithCellPolicy(geo.NewCellPolicy(geo.WithRadiusMeters(s.cellRadiusM))),
	)
	s.mock = mocklocation.New(s.tracker, mocklocation.WithClock(s.clock))
	return s
}

// Start launches the download coordinator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.coordinator = coordinator.New(s.store, s.fetcher,
		coordinator.WithWorkerCount(s.workerCount),
		coordinator.WithQueueSize(s.queueSize),
	)
	s.coordinator.Start(ctx)
	s.drained = make(chan struct{})
	go s.watchFailures(ctx, s.coordinator.Errors(), s.drained)

	s.started = true
	s.logger.Info(ctx, "badge service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Float64("cell_radius_m", s.cellRadiusM),
		logger.Duration("staleness_bound", s.stalenessBound),
	)
	return nil
}

// watchFailures keeps the coordinator's error channel drained.
func (s *Service) watchFailures(ctx context.Context, errs <-chan error, done chan<- struct{}) {
	defer close(done)
	for err := range errs {
		s.fetchFailed.Add(1)
		s.lastFailure.Store(err.Error())
		s.logger.Error(ctx, "badge download failed", logger.Error(err))
	}
}

// Stop cancels outstanding downloads and waits for the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping badge service...")
	err := s.coordinator.Close(ctx)
	<-s.drained

	s.started = false
	s.logger.Info(ctx, "badge service stopped")
	return err
}

// Observe offers a reading to the tracker.
func (s *Service) Observe(ctx context.Context, reading model.LocationReading) bool {
	return s.tracker.Observe(ctx, reading)
}

// ReportLocation observes a reading built from raw values. A zero time means
// now and an empty provider means the configured default.
func (s *Service) ReportLocation(ctx context.Context, lat, lon float64, at time.Time, provider string) (types.Reading, bool, error) {
	reading, err := s.newReading(lat, lon, at, provider)
	if err != nil {
		return types.Reading{}, false, err
	}
	return types.FromReading(reading), s.tracker.Observe(ctx, reading), nil
}

func (s *Service) newReading(lat, lon float64, at time.Time, provider string) (model.LocationReading, error) {
	if at.IsZero() {
		at = s.clock()
	}
	if provider == "" {
		provider = s.providerName
	}
	reading := model.NewLocationReading(lat, lon, at, provider)
	if !reading.Coordinate.Finite() {
		return model.LocationReading{}, fmt.Errorf("reading at %s: %w", reading.Coordinate, ErrInvalidCoordinate)
	}
	return reading, nil
}

// PushMockPlace observes one of the canned mock places.
func (s *Service) PushMockPlace(ctx context.Context, place string) (types.Reading, bool, error) {
	reading, accepted, err := s.mock.PushPlace(ctx, place)
	if err != nil {
		return types.Reading{}, false, err
	}
	return types.FromReading(reading), accepted, nil
}

// SeedSession offers the platform's last known reading at session start. It
// is ignored when older than the staleness bound. A zero time means now.
func (s *Service) SeedSession(ctx context.Context, lat, lon float64, at time.Time, provider string) (types.Reading, bool, error) {
	reading, err := s.newReading(lat, lon, at, provider)
	if err != nil {
		return types.Reading{}, false, err
	}
	seeded := s.tracker.Seed(ctx, &reading)
	s.logger.Info(ctx, "session seeded",
		logger.String("coordinate", reading.Coordinate.String()),
		logger.Bool("accepted", seeded),
	)
	return types.FromReading(reading), seeded, nil
}

// ResetSession forgets the current reading. Badges are kept.
func (s *Service) ResetSession(ctx context.Context) {
	s.tracker.Reset()
	s.logger.Info(ctx, "session reset")
}

// CurrentReading returns the tracker's reading, if any.
func (s *Service) CurrentReading(_ context.Context) (types.Reading, bool) {
	r := s.tracker.CurrentReading()
	if r == nil {
		return types.Reading{}, false
	}
	return types.FromReading(*r), true
}

// Trigger asks for a badge at the current usable reading. With wait set, it
// blocks until a started download finishes or ctx ends.
func (s *Service) Trigger(ctx context.Context, wait bool) (types.TriggerResult, error) {
	s.mu.RLock()
	coord, started := s.coordinator, s.started
	s.mu.RUnlock()
	if !started {
		return types.TriggerResult{}, ErrNotStarted
	}
	s.triggerCount.Add(1)

	outcome, pending, err := coord.EnsureBadge(ctx, s.tracker.UsableReading())
	if err != nil {
		return types.TriggerResult{}, fmt.Errorf("ensure badge: %w", err)
	}

	res := types.TriggerResult{Outcome: outcome.String()}
	switch outcome {
	case model.OutcomeNoLocation:
		res.Message = MessageNoLocation
		return res, ErrNoLocationAvailable
	case model.OutcomeAlreadyPresent:
		res.Message = MessageAlreadyPresent
		return res, nil
	}

	res.Message = MessageFetchStarted
	res.JobID = pending.ID()
	if !wait {
		return res, nil
	}
	record, err := pending.Wait(ctx)
	if err != nil {
		return res, err
	}
	b := types.FromBadge(record)
	res.Badge = &b
	return res, nil
}

// Badges returns the collected badges in the order they were added.
func (s *Service) Badges(_ context.Context) []types.Badge {
	return types.FromBadges(s.store.Snapshot())
}

// ClearBadges deletes every collected badge and returns how many there were.
func (s *Service) ClearBadges(ctx context.Context) int {
	n := s.store.Len()
	s.store.Clear(ctx)
	return n
}

// PrintBadges writes every collected badge to the log and returns the count.
func (s *Service) PrintBadges(ctx context.Context) int {
	records := s.store.Snapshot()
	for i := range records {
		s.logger.Info(ctx, "badge",
			logger.Int("index", i),
			logger.String("id", records[i].ID),
			logger.String("place", records[i].PlaceName),
			logger.String("country", records[i].CountryName),
			logger.String("flag_url", records[i].FlagURL),
			logger.String("coordinate", records[i].Coordinate.String()),
		)
	}
	return len(records)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"cellRadiusM":     s.cellRadiusM,
		"stalenessBound":  s.stalenessBound.String(),
		"badges":          s.store.Len(),
		"inFlight":        s.store.InFlight(),
		"triggers":        s.triggerCount.Load(),
		"failedDownloads": s.fetchFailed.Load(),
		"hasLocation":     s.tracker.CurrentReading() != nil,
	}
	if last, ok := s.lastFailure.Load().(string); ok {
		stats["lastFailure"] = last
	}
	return stats
}
