// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/placebadge/internal/domain/geo"
)

// LocationReading is one position fix. Readings are compared by age and by
// cell, never by identity.
type LocationReading struct {
	Coordinate geo.Coordinate
	Time       time.Time // capture time
	Provider   string    // source that produced the fix, e.g. "network"
}

// NewLocationReading builds a reading from raw values. Degenerate
// coordinates such as (0,0) are accepted.
func NewLocationReading(lat, lon float64, at time.Time, provider string) LocationReading {
	return LocationReading{
		Coordinate: geo.Coordinate{Lat: lat, Lon: lon},
		Time:       at,
		Provider:   provider,
	}
}

// Age returns how long ago the reading was captured relative to now.
func (r LocationReading) Age(now time.Time) time.Duration {
	return now.Sub(r.Time)
}

// BadgeRecord is a fetched place badge for one cell.
type BadgeRecord struct {
	ID          string
	Coordinate  geo.Coordinate // the cell this badge stands for
	PlaceName   string
	CountryName string
	FlagURL     string
	FetchedAt   time.Time
}

// Outcome is the result of asking for a badge at a reading.
type Outcome int

// Trigger outcomes. OutcomeUnknown is returned alongside an error, when no
// decision about the reading was made.
const (
	OutcomeUnknown Outcome = iota
	OutcomeNoLocation
	OutcomeAlreadyPresent
	OutcomeFetchStarted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoLocation:
		return "no_location"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeFetchStarted:
		return "fetch_started"
	default:
		return "unknown"
	}
}
