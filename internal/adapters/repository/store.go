// Package repository holds the badge store: badges collected during a
// session plus the cells whose badge fetch is still outstanding.
package repository

import (
	"context"

	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
)

// ReserveResult tells a caller whether it may start a fetch for a cell.
type ReserveResult int

// Reserve results.
const (
	// Reserved means the caller now owns the in-flight marker and must Release it.
	Reserved ReserveResult = iota
	// Present means a badge for the cell is already stored.
	Present
	// InFlight means another caller is already fetching the cell.
	InFlight
)

func (r ReserveResult) String() string {
	switch r {
	case Reserved:
		return "reserved"
	case Present:
		return "present"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Store provides access to the collected badges.
type Store interface {
	// Intersects reports whether a stored badge shares a cell with reading.
	// A nil reading never intersects.
	Intersects(reading *model.LocationReading) bool

	// Add appends record. It returns ErrDuplicateCell if a badge for an
	// overlapping cell is already stored.
	Add(ctx context.Context, record model.BadgeRecord) error

	// Snapshot returns a copy of the stored badges in insertion order.
	Snapshot() []model.BadgeRecord

	// Clear removes every stored badge.
	Clear(ctx context.Context)

	// Reserve checks Intersects and the in-flight set for reading under one
	// lock and, when both are clear, marks the reading's coordinate in flight.
	Reserve(reading model.LocationReading) ReserveResult

	// Release drops the in-flight marker placed by Reserve for coord.
	Release(coord geo.Coordinate)

	// Len returns the number of stored badges.
	Len() int

	// InFlight returns the number of outstanding fetches.
	InFlight() int
}
