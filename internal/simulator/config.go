// Package simulator drives a running placebadge service over HTTP: it walks a
// generated route, reports readings at every stop, asks for a badge there and
// checks that the collected badges respect the one-badge-per-cell rule.
package simulator

import "time"

// Config holds configuration for a simulated walk.
type Config struct {
	BaseURL         string        // Base URL of the service
	Stops           int           // Number of stops on the route
	ReadingsPerStop int           // Readings reported at each stop
	Workers         int           // Concurrent readers per stop
	StepMeters      float64       // Largest distance between two stops
	CellRadiusM     float64       // Radius the service uses for a cell
	Timeout         time.Duration // HTTP request timeout
	OutputFile      string        // Where to save the route; empty disables
	Verbose         bool          // Log every stop
}

// Reading is one reported position.
type Reading struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	TS       string  `json:"ts"`
	Provider string  `json:"provider"`
}

// Stop is one place on the route.
type Stop struct {
	Index    int       `json:"index"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Readings []Reading `json:"readings"`
}

// Badge mirrors the service's badge view.
type Badge struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	PlaceName   string  `json:"place_name"`
	CountryName string  `json:"country_name"`
}

type badgesResponse struct {
	Count  int     `json:"count"`
	Badges []Badge `json:"badges"`
}

type triggerResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type locationResponse struct {
	Accepted bool `json:"accepted"`
}

// Stats holds the results of a walk.
type Stats struct {
	Stops            int
	ReadingsSent     int
	ReadingsAccepted int
	ReadingsFailed   int
	FetchesStarted   int
	AlreadyPresent   int
	NoLocation       int
	TriggerFailures  int
	Badges           int
	StartTime        time.Time
	Duration         time.Duration
}
