// Package geo decides whether two coordinates refer to the same place for
// badging purposes.
package geo

import (
	"fmt"
	"math"
)

// Distance policy constants.
const (
	earthRadiusMeters   = 6_371_000.0
	defaultRadiusMeters = 1000.0
)

// Coordinate is a latitude/longitude pair in degrees. (0,0) is a valid
// coordinate, not a "no location" sentinel.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Finite reports whether both components are real numbers.
func (c Coordinate) Finite() bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) &&
		!math.IsNaN(c.Lon) && !math.IsInf(c.Lon, 0)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h a hair outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// CellPolicy judges whether two coordinates fall into the same cell. Two
// coordinates share a cell when they are no further apart than the radius.
type CellPolicy struct {
	radiusMeters float64
}

// Option applies a configuration option to the CellPolicy.
type Option func(*CellPolicy)

// WithRadiusMeters sets the same-cell distance threshold. Non-positive and
// non-finite values are ignored.
func WithRadiusMeters(m float64) Option {
	return func(p *CellPolicy) {
		if m > 0 && !math.IsInf(m, 0) && !math.IsNaN(m) {
			p.radiusMeters = m
		}
	}
}

// NewCellPolicy creates a CellPolicy; the default radius is one kilometre.
func NewCellPolicy(opts ...Option) CellPolicy {
	p := CellPolicy{radiusMeters: defaultRadiusMeters}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// RadiusMeters returns the configured threshold.
func (p CellPolicy) RadiusMeters() float64 {
	return p.radiusMeters
}

// SameCell reports whether a and b should be treated as the same place.
// It is symmetric and reflexive.
func (p CellPolicy) SameCell(a, b Coordinate) bool {
	if a == b {
		return true
	}
	radius := p.radiusMeters
	if radius <= 0 {
		radius = defaultRadiusMeters
	}
	return Distance(a, b) <= radius
}
