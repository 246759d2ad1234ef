package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/httpclient"
	"github.com/alfredjeanlab/venuesync/internal/metrics"
)

// ErrMissingAPIKey is returned by NewPlacesSource without a credential.
var ErrMissingAPIKey = errors.New("photos: missing API key")

const (
	DefaultPlacesBaseURL = "https://places.googleapis.com/v1"
	DefaultMaxWidthPx    = 1600
)

// PlacesSource lists photos through Places API place details and resolves
// each photo name to a short-lived download URL.
type PlacesSource struct {
	apiKey     string
	baseURL    string
	maxWidthPx int
	client     *http.Client
}

// PlacesOption configures a PlacesSource.
type PlacesOption func(*PlacesSource)

// WithPlacesBaseURL overrides DefaultPlacesBaseURL.
func WithPlacesBaseURL(u string) PlacesOption {
	return func(s *PlacesSource) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithPlacesHTTPClient sets the client for API calls.
func WithPlacesHTTPClient(c *http.Client) PlacesOption {
	return func(s *PlacesSource) { s.client = c }
}

// NewPlacesSource returns a Source backed by the Places API.
func NewPlacesSource(apiKey string, opts ...PlacesOption) (*PlacesSource, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	s := &PlacesSource{
		apiKey:     apiKey,
		baseURL:    DefaultPlacesBaseURL,
		maxWidthPx: DefaultMaxWidthPx,
		client:     httpclient.New(30 * time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type placeDetails struct {
	Photos []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

type photoMedia struct {
	Name     string `json:"name"`
	PhotoURI string `json:"photoUri"`
}

// PhotoURLs implements Source.
func (s *PlacesSource) PhotoURLs(ctx context.Context, placeID string, max int) ([]string, error) {
	var details placeDetails
	if err := s.get(ctx, "place_photos", s.baseURL+"/places/"+url.PathEscape(placeID), "photos", &details); err != nil {
		return nil, err
	}

	var urls []string
	for _, p := range details.Photos {
		if len(urls) >= max {
			break
		}
		if p.Name == "" {
			continue
		}
		q := url.Values{}
		q.Set("maxWidthPx", strconv.Itoa(s.maxWidthPx))
		q.Set("skipHttpRedirect", "true")

		var media photoMedia
		if err := s.get(ctx, "photo_media", s.baseURL+"/"+p.Name+"/media?"+q.Encode(), "", &media); err != nil {
			return nil, err
		}
		if media.PhotoURI != "" {
			urls = append(urls, media.PhotoURI)
		}
	}
	return urls, nil
}

func (s *PlacesSource) get(ctx context.Context, api, target, fieldMask string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Goog-Api-Key", s.apiKey)
	if fieldMask != "" {
		req.Header.Set("X-Goog-FieldMask", fieldMask)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("%s: %w", api, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("%s: read body: %w", api, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("%s: HTTP %d", api, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ExternalRequests.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("%s: decode: %w", api, err)
	}
	metrics.ExternalRequests.WithLabelValues(api, "ok").Inc()
	return nil
}
