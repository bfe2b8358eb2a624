package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// BadgeStore is an in-memory, insertion-ordered Store. The number of badges
// in a session is small, so lookups are linear scans.
type BadgeStore struct {
	mu       sync.RWMutex
	records  []model.BadgeRecord
	inFlight []geo.Coordinate

	policy geo.CellPolicy
	logger logger.Logger
}

var _ Store = (*BadgeStore)(nil)

// NewBadgeStore creates an empty BadgeStore.
func NewBadgeStore(opts ...Option) *BadgeStore {
	s := &BadgeStore{
		policy: geo.NewCellPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("badge-store")
	}
	metrics.UpdateBadgesStored(0)
	metrics.UpdateFetchesInFlight(0)
	return s
}

// Intersects reports whether a stored badge shares a cell with reading.
func (s *BadgeStore) Intersects(reading *model.LocationReading) bool {
	if reading == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intersectsLocked(reading.Coordinate)
}

func (s *BadgeStore) intersectsLocked(c geo.Coordinate) bool {
	for i := range s.records {
		if s.policy.SameCell(s.records[i].Coordinate, c) {
			return true
		}
	}
	return false
}

// Add appends record unless its cell is already badged.
func (s *BadgeStore) Add(ctx context.Context, record model.BadgeRecord) error {
	s.mu.Lock()
	if s.intersectsLocked(record.Coordinate) {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "duplicate_cell")
		return fmt.Errorf("add badge %s at %s: %w", record.PlaceName, record.Coordinate, ErrDuplicateCell)
	}
	s.records = append(s.records, record)
	n := len(s.records)
	s.mu.Unlock()

	metrics.UpdateBadgesStored(n)
	s.logger.Debug(ctx, "badge stored",
		logger.String("id", record.ID),
		logger.String("place", record.PlaceName),
		logger.String("coordinate", record.Coordinate.String()),
		logger.Int("badges", n),
	)
	return nil
}

// Snapshot returns a copy of the stored badges in insertion order.
func (s *BadgeStore) Snapshot() []model.BadgeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BadgeRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Clear removes every stored badge. Outstanding fetches keep their markers.
func (s *BadgeStore) Clear(ctx context.Context) {
	s.mu.Lock()
	removed := len(s.records)
	s.records = nil
	s.mu.Unlock()

	metrics.UpdateBadgesStored(0)
	s.logger.Info(ctx, "badges cleared", logger.Int("removed", removed))
}

// Reserve marks reading's coordinate in flight unless its cell is already
// badged or being fetched.
func (s *BadgeStore) Reserve(reading model.LocationReading) ReserveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intersectsLocked(reading.Coordinate) {
		return Present
	}
	for _, c := range s.inFlight {
		if s.policy.SameCell(c, reading.Coordinate) {
			return InFlight
		}
	}
	s.inFlight = append(s.inFlight, reading.Coordinate)
	metrics.UpdateFetchesInFlight(len(s.inFlight))
	return Reserved
}

// Release drops the in-flight marker for coord.
func (s *BadgeStore) Release(coord geo.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.inFlight {
		if c == coord {
			s.inFlight = append(s.inFlight[:i], s.inFlight[i+1:]...)
			break
		}
	}
	metrics.UpdateFetchesInFlight(len(s.inFlight))
}

// Len returns the number of stored badges.
func (s *BadgeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// InFlight returns the number of outstanding fetches.
func (s *BadgeStore) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inFlight)
}
