package repository

import (
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/pkg/logger"
)

// Option applies a configuration option to the BadgeStore.
type Option func(*BadgeStore)

// WithCellPolicy sets the policy used to decide whether two badges overlap.
func WithCellPolicy(p geo.CellPolicy) Option {
	return func(s *BadgeStore) {
		s.policy = p
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *BadgeStore) {
		if l != nil {
			s.logger = l
		}
	}
}
