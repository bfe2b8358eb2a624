// Package types contains the read shapes shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/placebadge/internal/domain/model"
)

// Reading is the API view of a location reading.
type Reading struct {
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	TS       time.Time `json:"ts"`
	Provider string    `json:"provider,omitempty"`
}

// Badge is the API view of a stored place badge.
type Badge struct {
	ID          string    `json:"id"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	PlaceName   string    `json:"place_name"`
	CountryName string    `json:"country_name"`
	FlagURL     string    `json:"flag_url,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// TriggerResult reports what a badge request did. Badge is set only when the
// caller waited for the download to finish.
type TriggerResult struct {
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Badge   *Badge `json:"badge,omitempty"`
}

// FromReading converts a domain reading.
func FromReading(r model.LocationReading) Reading {
	return Reading{
		Lat:      r.Coordinate.Lat,
		Lon:      r.Coordinate.Lon,
		TS:       r.Time,
		Provider: r.Provider,
	}
}

// FromBadge converts a domain badge.
func FromBadge(b model.BadgeRecord) Badge {
	return Badge{
		ID:          b.ID,
		Lat:         b.Coordinate.Lat,
		Lon:         b.Coordinate.Lon,
		PlaceName:   b.PlaceName,
		CountryName: b.CountryName,
		FlagURL:     b.FlagURL,
		FetchedAt:   b.FetchedAt,
	}
}

// FromBadges converts a slice of domain badges, preserving order.
func FromBadges(records []model.BadgeRecord) []Badge {
	out := make([]Badge, len(records))
	for i := range records {
		out[i] = FromBadge(records[i])
	}
	return out
}
