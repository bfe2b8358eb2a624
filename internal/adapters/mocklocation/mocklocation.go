// Package mocklocation injects synthetic location readings, for demos and
// manual testing without a real position source.
package mocklocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
)

// DefaultProviderName tags readings produced by the mock provider.
const DefaultProviderName = "mock"

// ErrUnknownPlace is returned for a canned place name that does not exist.
var ErrUnknownPlace = errors.New("unknown mock place")

// Place is a canned location.
type Place struct {
	Lat float64
	Lon float64
}

// Places are the canned locations. "invalid" resolves to no place.
var Places = map[string]Place{
	"one":     {Lat: 37.422, Lon: -122.084},
	"two":     {Lat: 38.996667, Lon: -76.9275},
	"invalid": {Lat: 0, Lon: 0},
}

// PlaceNames returns the canned place names in sorted order.
func PlaceNames() []string {
	names := make([]string, 0, len(Places))
	for name := range Places {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observer receives readings.
type Observer interface {
	Observe(ctx context.Context, reading model.LocationReading) bool
}

// Provider stamps coordinates with the current time and hands them to an
// Observer.
type Provider struct {
	observer Observer
	name     string
	clock    func() time.Time
	logger   logger.Logger
}

// Option applies a configuration option to the Provider.
type Option func(*Provider)

// WithName sets the provider name recorded on readings.
func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}

// WithClock sets the time source used to stamp readings.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the provider.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Provider feeding observer.
func New(observer Observer, opts ...Option) *Provider {
	p := &Provider{
		observer: observer,
		name:     DefaultProviderName,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("mock-location")
	}
	return p
}

// PushLocation delivers a reading at (lat, lon) captured now and reports
// whether the observer accepted it. Non-finite coordinates are refused with
// model.ErrInvalidCoordinate.
func (p *Provider) PushLocation(ctx context.Context, lat, lon float64) (model.LocationReading, bool, error) {
	reading := model.NewLocationReading(lat, lon, p.clock(), p.name)
	if !reading.Coordinate.Finite() {
		return model.LocationReading{}, false, fmt.Errorf("mock location %s: %w", reading.Coordinate, model.ErrInvalidCoordinate)
	}
	accepted := p.observer.Observe(ctx, reading)
	p.logger.Info(ctx, "mock location pushed",
		logger.String("coordinate", reading.Coordinate.String()),
		logger.Bool("accepted", accepted),
	)
	return reading, accepted, nil
}

// PushPlace delivers the canned place called name.
func (p *Provider) PushPlace(ctx context.Context, name string) (model.LocationReading, bool, error) {
	place, ok := Places[name]
	if !ok {
		return model.LocationReading{}, false, fmt.Errorf("%q: %w", name, ErrUnknownPlace)
	}
	return p.PushLocation(ctx, place.Lat, place.Lon)
}
