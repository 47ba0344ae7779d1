package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"carsync/models"
)

const (
	maxFetchRetries  = 2
	baseRetryBackoff = time.Second
)

// pageResponse is the API envelope: {"data": [...]}.
type pageResponse struct {
	Data []models.RawListing `json:"data"`
}

// PageFetcher pulls one page of raw listings from the auction API. Retries
// are a bounded loop with base*1.5^attempt backoff; the client timeout bounds
// each individual attempt.
type PageFetcher struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	pageSize int
	metrics  *Metrics
	backoff  time.Duration
	logf     func(format string, args ...interface{})
}

func NewPageFetcher(client *http.Client, baseURL, apiKey string, pageSize int, metrics *Metrics, logf func(string, ...interface{})) *PageFetcher {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &PageFetcher{
		client:   client,
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
		metrics:  metrics,
		backoff:  baseRetryBackoff,
		logf:     logf,
	}
}

// FetchPage returns the listings on the given page. An empty slice means the
// page exists but carries no data; the caller treats that as an end-of-data
// signal, not an error.
func (f *PageFetcher) FetchPage(ctx context.Context, page int) ([]models.RawListing, error) {
	url := fmt.Sprintf("%s/cars?page=%d&per_page=%d", f.baseURL, page, f.pageSize)

	var lastErr error
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(f.backoff) * math.Pow(1.5, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		listings, err := f.fetchOnce(ctx, url)
		if err == nil {
			return listings, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		f.logf("page %d attempt %d failed: %v", page, attempt+1, err)
	}

	return nil, fmt.Errorf("page %d: %w", page, lastErr)
}

func (f *PageFetcher) fetchOnce(ctx context.Context, url string) ([]models.RawListing, error) {
	f.metrics.AddAPIRequest()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.metrics.AddAPIError()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.AddAPIError()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		f.metrics.AddAPIError()
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.metrics.AddAPIError()
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		f.metrics.AddAPIError()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return envelope.Data, nil
}
