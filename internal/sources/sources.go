// Package sources extracts venues from listing providers. Each configured
// source kind maps to one extractor; the kind is chosen from configuration,
// never from the payload.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/model"
)

// ErrMissingAPIKey is returned by New when a scraping service source has no
// key in its environment variable.
var ErrMissingAPIKey = errors.New("sources: missing scraping service API key")

// Extractor lists a source's venues and extracts full attributes for one.
type Extractor interface {
	// Discover fetches the listing and returns every venue on it.
	Discover(ctx context.Context) ([]model.DiscoveredVenue, error)
	// Extract produces normalized venue and event attributes for d,
	// fetching the venue's own page where the source has one.
	Extract(ctx context.Context, d model.DiscoveredVenue) (*model.NormalizedVenue, error)
}

// New returns the extractor for cfg.Kind.
func New(cfg config.SourceConfig, client *http.Client, logger *slog.Logger) (Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", cfg.Slug)

	switch cfg.Kind {
	case config.KindJSONAPI:
		if cfg.JSON == nil {
			return nil, fmt.Errorf("source %s: json field mapping is required", cfg.Slug)
		}
		return &jsonExtractor{
			listingURL: cfg.ListingURL,
			fields:     cfg.JSON,
			fetch:      NewHTTPFetcher(client),
			logger:     logger,
		}, nil

	case config.KindHTML, config.KindScrapingService:
		if cfg.HTML == nil {
			return nil, fmt.Errorf("source %s: html selectors are required", cfg.Slug)
		}
		var fetch Fetcher = NewHTTPFetcher(client)
		if cfg.Kind == config.KindScrapingService {
			if cfg.ScrapingService == nil {
				return nil, fmt.Errorf("source %s: scraping_service settings are required", cfg.Slug)
			}
			key, err := cfg.ScrapingService.APIKey()
			if err != nil {
				return nil, fmt.Errorf("source %s: %w: %v", cfg.Slug, ErrMissingAPIKey, err)
			}
			fetch = NewScrapingFetcher(client, cfg.ScrapingService.Endpoint, key, cfg.ScrapingService.Render)
		}
		return newHTMLExtractor(cfg.ListingURL, cfg.HTML, fetch, logger)

	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", cfg.Slug, cfg.Kind)
	}
}
