package coordinator

import "errors"

// Sentinel kinds for coordinator errors.
var (
	// ErrFetchFailed wraps the cause of a failed or cancelled badge fetch.
	ErrFetchFailed = errors.New("badge fetch failed")
	// ErrBackpressure means the fetch queue is full.
	ErrBackpressure = errors.New("fetch queue is full")
	// ErrClosed means the coordinator no longer accepts work.
	ErrClosed = errors.New("coordinator is closed")
)
