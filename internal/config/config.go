// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New(ctx) builds a Config with defaults; Load layers file and env on top.
// - Durations are written as Go duration strings, e.g. "5m" or "750ms".
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CellRadiusM is the distance in meters within which two readings share
	// a badge.
	CellRadiusM float64 `koanf:"cell_radius_m"`

	// StalenessBound is the age past which a reading is not used to trigger
	// a fetch or to seed a session.
	StalenessBound time.Duration `koanf:"staleness_bound"`

	// FetchWorkers sets how many badge fetches may run at once.
	FetchWorkers int `koanf:"fetch_workers"`

	// FetchQueueSize bounds fetches waiting for a worker.
	FetchQueueSize int `koanf:"fetch_queue_size"`

	// FetchTimeout bounds one provider request.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// GeonamesURL and GeonamesUsername configure the place provider.
	GeonamesURL      string `koanf:"geonames_url"`
	GeonamesUsername string `koanf:"geonames_username"`

	// RedisAddr enables the badge cache when non-empty.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// CacheTTL is how long cached badges live.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// ProviderName tags readings pushed through the HTTP API when the
	// request does not name a provider.
	ProviderName string `koanf:"provider_name"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		CellRadiusM:      1000,
		StalenessBound:   5 * time.Minute,
		FetchWorkers:     2,
		FetchQueueSize:   16,
		FetchTimeout:     10 * time.Second,
		GeonamesURL:      "http://api.geonames.org/findNearbyPlaceNameJSON",
		GeonamesUsername: "demo",
		CacheTTL:         24 * time.Hour,
		ProviderName:     "network",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CellRadiusM <= 0:
		return fmt.Errorf("%w: cell_radius_m must be positive, got %v", ErrInvalidConfig, c.CellRadiusM)
	case c.StalenessBound <= 0:
		return fmt.Errorf("%w: staleness_bound must be positive, got %s", ErrInvalidConfig, c.StalenessBound)
	case c.FetchWorkers < 1:
		return fmt.Errorf("%w: fetch_workers must be at least 1, got %d", ErrInvalidConfig, c.FetchWorkers)
	case c.FetchQueueSize < 1:
		return fmt.Errorf("%w: fetch_queue_size must be at least 1, got %d", ErrInvalidConfig, c.FetchQueueSize)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("%w: fetch_timeout must be positive, got %s", ErrInvalidConfig, c.FetchTimeout)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
