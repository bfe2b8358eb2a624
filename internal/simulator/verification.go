package simulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/pkg/logger"
)

// ErrCellCollision means two collected badges share a cell.
var ErrCellCollision = errors.New("badges share a cell")

// verifyBadges checks that no two badges fall in the same cell and that
// every started download produced a badge.
func verifyBadges(ctx context.Context, config *Config, badges []Badge, stats *Stats) error {
	policy := geo.NewCellPolicy(geo.WithRadiusMeters(config.CellRadiusM))

	for i := range badges {
		a := geo.Coordinate{Lat: badges[i].Lat, Lon: badges[i].Lon}
		for j := i + 1; j < len(badges); j++ {
			b := geo.Coordinate{Lat: badges[j].Lat, Lon: badges[j].Lon}
			if policy.SameCell(a, b) {
				return fmt.Errorf("%w: %s and %s are %.1fm apart",
					ErrCellCollision, badges[i].ID, badges[j].ID, geo.Distance(a, b))
			}
		}
	}

	if len(badges) != stats.FetchesStarted {
		logger.Get().Warn(ctx, "badge count differs from downloads started",
			logger.Int("badges", len(badges)),
			logger.Int("fetchesStarted", stats.FetchesStarted))
	}

	logger.Get().Info(ctx, "badges verified", logger.Int("badges", len(badges)))
	return nil
}
