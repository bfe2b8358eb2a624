package repository

import "errors"

// Sentinel kinds for badge store errors.
var (
	ErrDuplicateCell = errors.New("badge already stored for this cell")
)
