package coordinator

import (
	"github.com/okian/placebadge/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithWorkerCount sets how many fetches may run at once.
func WithWorkerCount(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithQueueSize sets how many fetches may wait for a worker.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithErrorBuffer sets the capacity of the Errors channel. Failures that do
// not fit are logged and dropped from the channel.
func WithErrorBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.errorBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
