// Package freshness decides which location reading is authoritative.
package freshness

import (
	"time"

	"github.com/okian/placebadge/internal/domain/model"
)

// DefaultStalenessBound is how old a reading may be and still trigger a download.
const DefaultStalenessBound = 5 * time.Minute

// Clock returns the reference time used for age computation.
type Clock func() time.Time

// Arbiter compares reading ages against a reference clock.
type Arbiter struct {
	clock          Clock
	stalenessBound time.Duration
}

// Option applies a configuration option to the Arbiter.
type Option func(*Arbiter)

// WithClock overrides the reference clock.
func WithClock(clock Clock) Option {
	return func(a *Arbiter) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithStalenessBound sets the maximum usable age.
func WithStalenessBound(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.stalenessBound = d
		}
	}
}

// NewArbiter creates an Arbiter using time.Now and a five minute staleness bound.
func NewArbiter(opts ...Option) *Arbiter {
	a := &Arbiter{
		clock:          time.Now,
		stalenessBound: DefaultStalenessBound,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Accept reports whether candidate should replace current. A nil current is
// always replaced; otherwise the candidate must be strictly younger.
func (a *Arbiter) Accept(current *model.LocationReading, candidate model.LocationReading) bool {
	if current == nil {
		return true
	}
	now := a.clock()
	return candidate.Age(now) < current.Age(now)
}

// Usable reports whether reading may be used to trigger a download.
func (a *Arbiter) Usable(reading *model.LocationReading) bool {
	if reading == nil {
		return false
	}
	return reading.Age(a.clock()) < a.stalenessBound
}

// StalenessBound returns the configured bound.
func (a *Arbiter) StalenessBound() time.Duration {
	return a.stalenessBound
}

// Now returns the arbiter's reference time.
func (a *Arbiter) Now() time.Time {
	return a.clock()
}
