package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/placebadge/internal/adapters/mq/worker"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// Default cache configuration constants.
const (
	DefaultCacheTTL = 24 * time.Hour
	cacheKeyPrefix  = "placebadge:badge:"

	// DefaultGeohashPrecision yields cells of roughly 1.2km x 0.6km.
	DefaultGeohashPrecision = 6
	maxGeohashPrecision     = 12
)

// CachingFetcher keeps fetched badges in Redis keyed by geohash cell so the
// same place is not downloaded again across sessions. Redis failures are
// logged and the inner fetcher is used.
type CachingFetcher struct {
	next      worker.Fetcher
	rc        *redis.Client
	ttl       time.Duration
	precision int
	logger    logger.Logger
}

var (
	_ worker.Fetcher = (*CachingFetcher)(nil)
	_ worker.Fetcher = (*HTTPFetcher)(nil)
)

// CacheOption applies a configuration option to the CachingFetcher.
type CacheOption func(*CachingFetcher)

// WithTTL sets how long cached badges live.
func WithTTL(d time.Duration) CacheOption {
	return func(f *CachingFetcher) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithGeohashPrecision sets the geohash length used for cache keys, 1 to 12.
func WithGeohashPrecision(p int) CacheOption {
	return func(f *CachingFetcher) {
		if p > 0 && p <= maxGeohashPrecision {
			f.precision = p
		}
	}
}

// WithCacheLogger sets a custom logger for the cache.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(f *CachingFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewCachingFetcher wraps next with a Redis cache. A nil client disables
// caching.
func NewCachingFetcher(next worker.Fetcher, rc *redis.Client, opts ...CacheOption) *CachingFetcher {
	f := &CachingFetcher{
		next:      next,
		rc:        rc,
		ttl:       DefaultCacheTTL,
		precision: DefaultGeohashPrecision,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("badge-cache")
	}
	return f
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Key returns the cache key for c.
func (f *CachingFetcher) Key(c geo.Coordinate) string {
	return cacheKeyPrefix + geohash.EncodeWithPrecision(c.Lat, c.Lon, f.precision)
}

// Fetch returns the cached badge for c's cell or downloads and caches it.
// A cached badge is re-anchored at c.
func (f *CachingFetcher) Fetch(ctx context.Context, c geo.Coordinate) (model.BadgeRecord, error) {
	if f.rc == nil {
		return f.next.Fetch(ctx, c)
	}

	key := f.Key(c)
	if record, ok := f.lookup(ctx, key); ok {
		record.ID = uuid.NewString()
		record.Coordinate = c
		return record, nil
	}

	record, err := f.next.Fetch(ctx, c)
	if err != nil {
		return model.BadgeRecord{}, err
	}

	b, err := json.Marshal(record)
	if err == nil {
		err = f.rc.Set(ctx, key, b, f.ttl).Err()
	}
	if err != nil {
		metrics.RecordErrorByComponent("cache", "set_error")
		f.logger.Warn(ctx, "caching badge failed", logger.String("key", key), logger.Error(err))
	}
	return record, nil
}

func (f *CachingFetcher) lookup(ctx context.Context, key string) (model.BadgeRecord, bool) {
	var record model.BadgeRecord
	b, err := f.rc.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
		return record, false
	case err != nil:
		metrics.RecordCacheLookup("error")
		f.logger.Warn(ctx, "badge cache lookup failed", logger.String("key", key), logger.Error(err))
		return record, false
	}
	if err := json.Unmarshal(b, &record); err != nil {
		metrics.RecordCacheLookup("error")
		f.logger.Warn(ctx, "discarding corrupt cached badge", logger.String("key", key), logger.Error(err))
		return record, false
	}
	metrics.RecordCacheLookup("hit")
	f.logger.Debug(ctx, "badge cache hit", logger.String("key", key), logger.String("place", record.PlaceName))
	return record, true
}
