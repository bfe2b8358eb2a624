package model

import "errors"

// Errors shared between the service and its transports.
var (
	ErrNoLocationAvailable = errors.New("no location available")
	ErrNotStarted          = errors.New("service not started")
	ErrInvalidCoordinate   = errors.New("coordinate is not a finite number")
)
