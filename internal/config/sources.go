package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

// Source kinds. Each selects one extractor implementation.
const (
	KindJSONAPI         = "json_api"
	KindHTML            = "html"
	KindScrapingService = "scraping_service"
)

// SourcesConfig is the decoded sources file.
type SourcesConfig struct {
	Sources []SourceConfig `toml:"source" validate:"required,min=1,dive"`
}

// SourceConfig describes one listing provider and how to extract from it.
type SourceConfig struct {
	Name       string `toml:"name" validate:"required"`
	Slug       string `toml:"slug" validate:"required"`
	WebsiteURL string `toml:"website_url" validate:"omitempty,url"`
	Kind       string `toml:"kind" validate:"required,oneof=json_api html scraping_service"`
	ListingURL string `toml:"listing_url" validate:"required,url"`

	// DetailInterval overrides the global spacing between detail jobs.
	DetailInterval time.Duration `toml:"detail_interval"`

	JSON            *JSONFields      `toml:"json" validate:"required_if=Kind json_api"`
	HTML            *HTMLSelectors   `toml:"html" validate:"required_unless=Kind json_api"`
	ScrapingService *ScrapingService `toml:"scraping_service" validate:"required_if=Kind scraping_service"`
}

// Source returns the static reference record for this source.
func (c SourceConfig) Source() *model.Source {
	return &model.Source{Name: c.Name, Slug: c.Slug, WebsiteURL: c.WebsiteURL}
}

// JSONFields maps listing JSON onto venue attributes. Paths are dot-separated.
// Items is the path of the venue array; empty means the document root.
type JSONFields struct {
	Items       string `toml:"items"`
	Name        string `toml:"name" validate:"required"`
	Address     string `toml:"address" validate:"required"`
	URL         string `toml:"url"`
	Schedule    string `toml:"schedule" validate:"required"`
	DayOfWeek   string `toml:"day_of_week"`
	StartTime   string `toml:"start_time"`
	Postcode    string `toml:"postcode"`
	Phone       string `toml:"phone"`
	Website     string `toml:"website"`
	Latitude    string `toml:"latitude"`
	Longitude   string `toml:"longitude"`
	Fee         string `toml:"fee"`
	Description string `toml:"description"`
	Image       string `toml:"image"`
}

// HTMLSelectors are CSS selectors for the listing page and for each venue's
// detail page. Link and image selectors read href and src respectively.
type HTMLSelectors struct {
	Item     string `toml:"item" validate:"required"`
	Name     string `toml:"name" validate:"required"`
	Address  string `toml:"address" validate:"required"`
	Link     string `toml:"link"`
	Schedule string `toml:"schedule"`

	Detail DetailSelectors `toml:"detail"`
}

// DetailSelectors extract attributes from a venue page.
type DetailSelectors struct {
	Schedule       string `toml:"schedule"`
	DayOfWeek      string `toml:"day_of_week"`
	StartTime      string `toml:"start_time"`
	Address        string `toml:"address"`
	Postcode       string `toml:"postcode"`
	Phone          string `toml:"phone"`
	Website        string `toml:"website"`
	Fee            string `toml:"fee"`
	Description    string `toml:"description"`
	HeroImage      string `toml:"hero_image"`
	PerformerName  string `toml:"performer_name"`
	PerformerImage string `toml:"performer_image"`
}

// ScrapingService renders pages through a third-party scraping API. The
// target URL is passed in the "url" query parameter and the key in "api_key".
type ScrapingService struct {
	Endpoint  string `toml:"endpoint" validate:"required,url"`
	APIKeyEnv string `toml:"api_key_env" validate:"required"`
	Render    bool   `toml:"render"`
}

// APIKey reads the scraping service key from its environment variable.
func (s *ScrapingService) APIKey() (string, error) {
	key := os.Getenv(s.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s is required for the scraping service", s.APIKeyEnv)
	}
	return key, nil
}

// LoadSources decodes and validates the TOML sources file at path.
func LoadSources(path string) (*SourcesConfig, error) {
	var cfg SourcesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field rules and slug uniqueness.
func (c *SourcesConfig) Validate() error {
	if err := model.ValidateStruct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.Slug] {
			return &model.ValidationError{Errors: []model.FieldError{
				{Field: "slug", Message: fmt.Sprintf("duplicate source slug %q", s.Slug)},
			}}
		}
		seen[s.Slug] = true
	}
	return nil
}

// Lookup returns the source with the given slug.
func (c *SourcesConfig) Lookup(slug string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Slug == slug {
			return s, true
		}
	}
	return SourceConfig{}, false
}
