package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/placebadge/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run walks a generated route against the service and verifies the badges
// collected along the way.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting placebadge walk",
		logger.String("baseURL", config.BaseURL),
		logger.Int("stops", config.Stops),
		logger.Int("readingsPerStop", config.ReadingsPerStop),
		logger.Int("workers", config.Workers),
		logger.Float64("stepMeters", config.StepMeters),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	route, err := generateRoute(ctx, config, stats.StartTime)
	if err != nil {
		return stats, fmt.Errorf("route generation failed: %w", err)
	}

	for _, stop := range route {
		submitReadings(ctx, client, config, stop.Readings, stats)
		outcome, err := ensureBadge(ctx, client, stats)
		if err != nil {
			return stats, fmt.Errorf("stop %d: %w", stop.Index, err)
		}
		stats.Stops++
		if config.Verbose {
			logger.Get().Info(ctx, "stop visited",
				logger.Int("index", stop.Index),
				logger.Float64("lat", stop.Lat),
				logger.Float64("lon", stop.Lon),
				logger.String("outcome", outcome))
		}
	}

	badges, err := getBadges(ctx, client)
	if err != nil {
		return stats, fmt.Errorf("badge retrieval failed: %w", err)
	}
	stats.Badges = len(badges)

	if err := verifyBadges(ctx, config, badges, stats); err != nil {
		return stats, fmt.Errorf("badge verification failed: %w", err)
	}

	if config.OutputFile != "" {
		if err := saveRoute(ctx, config.OutputFile, route); err != nil {
			logger.Get().Warn(ctx, "failed to save route to file", logger.Error(err))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// saveRoute writes the generated route as indented JSON.
func saveRoute(ctx context.Context, filename string, route []Stop) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(route, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write route: %w", err)
	}

	logger.Get().Info(ctx, "route saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.Int("stops", stats.Stops),
		logger.Int("readingsSent", stats.ReadingsSent),
		logger.Int("readingsAccepted", stats.ReadingsAccepted),
		logger.Int("readingsFailed", stats.ReadingsFailed),
		logger.Int("fetchesStarted", stats.FetchesStarted),
		logger.Int("alreadyPresent", stats.AlreadyPresent),
		logger.Int("noLocation", stats.NoLocation),
		logger.Int("triggerFailures", stats.TriggerFailures),
		logger.Int("badges", stats.Badges),
		logger.Duration("duration", stats.Duration))
}
