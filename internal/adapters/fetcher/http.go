// Package fetcher downloads place badges for coordinates.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/pkg/logger"
	"github.com/okian/placebadge/pkg/metrics"
)

// Default fetcher configuration constants.
const (
	DefaultBaseURL  = "http://api.geonames.org/findNearbyPlaceNameJSON"
	DefaultUsername = "demo"
	defaultTimeout  = 10 * time.Second
	flagURLPattern  = "http://www.geonames.org/flags/x/%s.gif"
	maxErrorBody    = 512
)

type nearbyResponse struct {
	Geonames []struct {
		Name        string `json:"name"`
		ToponymName string `json:"toponymName"`
		CountryName string `json:"countryName"`
		CountryCode string `json:"countryCode"`
	} `json:"geonames"`
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

// HTTPFetcher resolves a coordinate to the nearest named place using a
// findNearbyPlaceName style JSON API.
type HTTPFetcher struct {
	baseURL  string
	username string
	timeout  time.Duration
	client   *http.Client
	logger   logger.Logger
}

// HTTPOption applies a configuration option to the HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithBaseURL sets the endpoint queried for places.
func WithBaseURL(u string) HTTPOption {
	return func(f *HTTPFetcher) {
		if u != "" {
			f.baseURL = u
		}
	}
}

// WithUsername sets the account name sent with each request.
func WithUsername(name string) HTTPOption {
	return func(f *HTTPFetcher) {
		if name != "" {
			f.username = name
		}
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithHTTPLogger sets a custom logger for the fetcher.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTPFetcher creates a fetcher with configuration options.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL:  DefaultBaseURL,
		username: DefaultUsername,
		timeout:  defaultTimeout,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("fetcher")
	}
	return f
}

// Fetch returns the badge for the place nearest to c.
func (f *HTTPFetcher) Fetch(ctx context.Context, c geo.Coordinate) (model.BadgeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(c.Lon, 'f', 6, 64))
	q.Set("username", f.username)
	u := f.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.BadgeRecord{}, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("fetcher", "http_error")
		return model.BadgeRecord{}, fmt.Errorf("request place for %s: %w", c, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.RecordErrorByComponent("fetcher", "bad_status")
		return model.BadgeRecord{}, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		metrics.RecordErrorByComponent("fetcher", "decode_error")
		return model.BadgeRecord{}, fmt.Errorf("decode place response: %w", err)
	}
	f.logger.Debug(ctx, "place response",
		logger.String("coordinate", c.String()),
		logger.Int("places", len(r.Geonames)),
		logger.Duration("duration", time.Since(start)),
	)

	if r.Status != nil {
		metrics.RecordErrorByComponent("fetcher", "provider_status")
		return model.BadgeRecord{}, fmt.Errorf("%w: %s (code %d)", ErrProvider, r.Status.Message, r.Status.Value)
	}
	if len(r.Geonames) == 0 {
		return model.BadgeRecord{}, fmt.Errorf("%s: %w", c, ErrNoPlace)
	}

	p := r.Geonames[0]
	name := p.Name
	if name == "" {
		name = p.ToponymName
	}
	if name == "" || p.CountryName == "" {
		return model.BadgeRecord{}, fmt.Errorf("%s: %w", c, ErrNoPlace)
	}

	record := model.BadgeRecord{
		ID:          uuid.NewString(),
		Coordinate:  c,
		PlaceName:   name,
		CountryName: p.CountryName,
		FetchedAt:   time.Now(),
	}
	if p.CountryCode != "" {
		record.FlagURL = fmt.Sprintf(flagURLPattern, strings.ToLower(p.CountryCode))
	}
	return record, nil
}
