package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/metrics"
)

// DefaultFetchTimeout bounds a single page fetch.
const DefaultFetchTimeout = 20 * time.Second

// maxPageBytes caps how much of a page is read.
const maxPageBytes = 8 << 20

// StatusError is a non-2xx response from a source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Code)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests && e.Code != http.StatusRequestTimeout
}

// Fetcher retrieves a page body.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// HTTPFetcher GETs pages directly. Each call runs under its own deadline.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher returns a fetcher using client, or http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, timeout: DefaultFetchTimeout}
}

// Fetch GETs pageURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return get(ctx, f.client, f.timeout, pageURL, "source")
}

// ScrapingFetcher renders pages through a scraping API: the target goes in
// the url query parameter and the key in api_key.
type ScrapingFetcher struct {
	client   *http.Client
	endpoint string
	apiKey   string
	render   bool
	timeout  time.Duration
}

// NewScrapingFetcher returns a fetcher for the scraping API at endpoint.
func NewScrapingFetcher(client *http.Client, endpoint, apiKey string, render bool) *ScrapingFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	// Rendering through a headless browser is slow.
	return &ScrapingFetcher{client: client, endpoint: endpoint, apiKey: apiKey, render: render, timeout: 3 * DefaultFetchTimeout}
}

// Fetch retrieves pageURL through the scraping API.
func (f *ScrapingFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("scraping endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", f.apiKey)
	q.Set("url", pageURL)
	if f.render {
		q.Set("render", "true")
	}
	u.RawQuery = q.Encode()

	body, err := get(ctx, f.client, f.timeout, u.String(), "scraping_service")
	var se *StatusError
	if errors.As(err, &se) {
		se.URL = pageURL
	}
	return body, err
}

func get(ctx context.Context, client *http.Client, timeout time.Duration, pageURL, api string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		// *url.Error repeats the full URL, query string included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("fetch %s: %w", redact(req.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return nil, &StatusError{URL: redact(req.URL), Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return nil, fmt.Errorf("read %s: %w", redact(req.URL), err)
	}
	metrics.ExternalRequests.WithLabelValues(api, "ok").Inc()
	return body, nil
}

// redact drops the query string.
func redact(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}
