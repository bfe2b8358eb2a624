// Package tracker holds the authoritative last-known location reading.
package tracker

import (
	"context"
	"sync"

	"github.com/okian/placebadge/internal/domain/freshness"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// Tracker is a two-state machine: Empty, or Holding a reading. Observe is the
// only mutator during a session; Reset belongs to whoever owns the session.
type Tracker struct {
	mu      sync.RWMutex
	current *model.LocationReading

	arbiter *freshness.Arbiter
	logger  logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithLogger sets a custom logger for the tracker.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates an empty Tracker.
func New(arbiter *freshness.Arbiter, opts ...Option) *Tracker {
	if arbiter == nil {
		arbiter = freshness.NewArbiter()
	}
	t := &Tracker{arbiter: arbiter}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Get().Named("tracker")
	}
	return t
}

// Observe offers candidate to the tracker and reports whether it became the
// current reading. Rejected readings are dropped, as are readings whose
// coordinate is not finite.
func (t *Tracker) Observe(ctx context.Context, candidate model.LocationReading) bool {
	metrics.RecordReadingObserved()

	if !candidate.Coordinate.Finite() {
		metrics.RecordReadingRejected()
		t.logger.Warn(ctx, "ignoring reading with a non-finite coordinate",
			logger.String("coordinate", candidate.Coordinate.String()),
			logger.String("provider", candidate.Provider),
		)
		return false
	}

	t.mu.Lock()
	accepted := t.arbiter.Accept(t.current, candidate)
	if accepted {
		c := candidate
		t.current = &c
	}
	t.mu.Unlock()

	if !accepted {
		metrics.RecordReadingRejected()
		t.logger.Debug(ctx, "ignoring reading that is not fresher than the current one",
			logger.String("coordinate", candidate.Coordinate.String()),
			logger.Time("captured_at", candidate.Time),
			logger.String("provider", candidate.Provider),
		)
		return false
	}

	metrics.RecordReadingAccepted()
	t.logger.Debug(ctx, "reading accepted",
		logger.String("coordinate", candidate.Coordinate.String()),
		logger.Time("captured_at", candidate.Time),
		logger.String("provider", candidate.Provider),
	)
	return true
}

// Seed offers a last-known reading at session start. Unlike Observe it drops
// readings older than the staleness bound.
func (t *Tracker) Seed(ctx context.Context, lastKnown *model.LocationReading) bool {
	if !t.arbiter.Usable(lastKnown) {
		if lastKnown != nil {
			t.logger.Debug(ctx, "last known reading too old to seed the session",
				logger.Duration("age", lastKnown.Age(t.arbiter.Now())),
			)
		}
		return false
	}
	return t.Observe(ctx, *lastKnown)
}

// CurrentReading returns a copy of the held reading, or nil when Empty.
func (t *Tracker) CurrentReading() *model.LocationReading {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return nil
	}
	c := *t.current
	return &c
}

// UsableReading returns the held reading if it is recent enough to trigger a
// download, nil otherwise.
func (t *Tracker) UsableReading() *model.LocationReading {
	r := t.CurrentReading()
	if !t.arbiter.Usable(r) {
		return nil
	}
	return r
}

// Reset returns the tracker to Empty for a new session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}
