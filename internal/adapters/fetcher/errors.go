package fetcher

import "errors"

// Sentinel kinds for fetcher errors.
var (
	// ErrNoPlace means the provider knows no place near the coordinate.
	ErrNoPlace = errors.New("no place near coordinate")
	// ErrProvider means the provider answered with an error.
	ErrProvider = errors.New("place provider error")
)
