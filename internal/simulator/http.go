package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/placebadge/pkg/logger"
)

// HTTPClient wraps http.Client with a timeout and a base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// submitReadings posts one stop's readings concurrently, so the service sees
// them in arbitrary order.
func submitReadings(ctx context.Context, client *HTTPClient, config *Config, readings []Reading, stats *Stats) {
	var accepted, failed int64

	ch := make(chan Reading, len(readings))
	for _, r := range readings {
		ch <- r
	}
	close(ch)

	workers := max(config.Workers, 1)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range ch {
				if ctx.Err() != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				code, body, err := client.do(ctx, http.MethodPost, "/locations", r)
				if err != nil || code != http.StatusOK {
					atomic.AddInt64(&failed, 1)
					continue
				}
				var resp locationResponse
				if err := json.Unmarshal(body, &resp); err == nil && resp.Accepted {
					atomic.AddInt64(&accepted, 1)
				}
			}
		}()
	}
	wg.Wait()

	stats.ReadingsSent += len(readings)
	stats.ReadingsAccepted += int(accepted)
	stats.ReadingsFailed += int(failed)
}

// ensureBadge asks the service for a badge at the current location and waits
// for any download it starts.
func ensureBadge(ctx context.Context, client *HTTPClient, stats *Stats) (string, error) {
	code, body, err := client.do(ctx, http.MethodPost, "/badges/ensure?wait=true", nil)
	if err != nil {
		stats.TriggerFailures++
		return "", err
	}

	var resp triggerResponse
	_ = json.Unmarshal(body, &resp)

	switch {
	case code == http.StatusConflict:
		stats.NoLocation++
	case code >= http.StatusBadRequest:
		stats.TriggerFailures++
		return "", fmt.Errorf("ensure badge failed with status %d: %s", code, bytes.TrimSpace(body))
	case resp.Outcome == "already_present":
		stats.AlreadyPresent++
	case resp.Outcome == "fetch_started":
		stats.FetchesStarted++
	}
	return resp.Outcome, nil
}

// getBadges lists the collected badges.
func getBadges(ctx context.Context, client *HTTPClient) ([]Badge, error) {
	code, body, err := client.do(ctx, http.MethodGet, "/badges", nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("list badges failed with status %d", code)
	}
	var resp badgesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode badges: %w", err)
	}
	return resp.Badges, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	code, _, err := client.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// The service answers with its Prometheus metrics.
	if code != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", code)
	}
	return nil
}
