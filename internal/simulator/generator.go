package simulator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/okian/placebadge/internal/adapters/mocklocation"
	"github.com/okian/placebadge/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1_000_000
	earthRadiusM       = 6_371_000.0
	jitterMeters       = 25.0
	readingSpacing     = 200 * time.Millisecond
)

// Providers a simulated reading may come from.
var providers = []string{"gps", "network"}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// offset moves (lat, lon) by meters along bearing (radians).
func offset(lat, lon, meters, bearing float64) (float64, float64) {
	d := meters / earthRadiusM
	φ1 := lat * math.Pi / 180
	λ1 := lon * math.Pi / 180
	φ2 := math.Asin(math.Sin(φ1)*math.Cos(d) + math.Cos(φ1)*math.Sin(d)*math.Cos(bearing))
	λ2 := λ1 + math.Atan2(math.Sin(bearing)*math.Sin(d)*math.Cos(φ1), math.Cos(d)-math.Sin(φ1)*math.Sin(φ2))
	return φ2 * 180 / math.Pi, math.Mod(λ2*180/math.Pi+540, 360) - 180
}

// generateRoute builds a random walk that starts at the first canned place.
// Reading timestamps within a stop are spaced so the last one is freshest.
func generateRoute(ctx context.Context, config *Config, now time.Time) ([]Stop, error) {
	logger.Get().Info(ctx, "generating route",
		logger.Int("stops", config.Stops),
		logger.Int("readingsPerStop", config.ReadingsPerStop),
	)

	start := mocklocation.Places["one"]
	lat, lon := start.Lat, start.Lon
	stops := make([]Stop, config.Stops)
	base := now.Add(-time.Duration(config.Stops*config.ReadingsPerStop) * readingSpacing)

	for i := range stops {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("route generation cancelled: %w", err)
		}
		if i > 0 {
			lat, lon = offset(lat, lon, getRandomFloat()*config.StepMeters, getRandomFloat()*2*math.Pi)
		}
		stop := Stop{Index: i, Lat: lat, Lon: lon, Readings: make([]Reading, config.ReadingsPerStop)}
		for j := range stop.Readings {
			rlat, rlon := offset(lat, lon, getRandomFloat()*jitterMeters, getRandomFloat()*2*math.Pi)
			ts := base.Add(time.Duration(i*config.ReadingsPerStop+j) * readingSpacing)
			stop.Readings[j] = Reading{
				Lat:      rlat,
				Lon:      rlon,
				TS:       ts.UTC().Format(time.RFC3339Nano),
				Provider: providers[j%len(providers)],
			}
		}
		stops[i] = stop
	}

	logger.Get().Info(ctx, "generated route", logger.Int("stops", len(stops)))
	return stops, nil
}
