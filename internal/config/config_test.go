package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

// allEnvVars lists every env var Load reads; they are cleared between tests.
var allEnvVars = []string{
	"VENUESYNC_DATABASE_URL", "VENUESYNC_GRPC_ADDR", "VENUESYNC_HTTP_ADDR", "VENUESYNC_NATS_URL",
	"VENUESYNC_SOURCES_FILE", "VENUESYNC_GOOGLE_MAPS_API_KEY", "VENUESYNC_PHOTO_DIR",
	"VENUESYNC_PHOTO_S3_BUCKET", "VENUESYNC_PHOTO_S3_ENDPOINT", "VENUESYNC_PHOTO_S3_REGION",
	"VENUESYNC_DETAIL_INTERVAL", "VENUESYNC_DISCOVERY_INTERVAL", "VENUESYNC_CITY_REFRESH_INTERVAL",
	"VENUESYNC_DEDUP_WINDOW", "VENUESYNC_JOB_TIMEOUT", "VENUESYNC_HTTP_TIMEOUT",
	"VENUESYNC_DISCOVERY_CONCURRENCY", "VENUESYNC_DETAIL_CONCURRENCY",
	"VENUESYNC_ENRICHMENT_CONCURRENCY", "VENUESYNC_MAINTENANCE_CONCURRENCY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name               string
		env                map[string]string
		opts               []Option
		wantErr            bool
		wantGRPCAddr       string
		wantHTTPAddr       string
		wantDetailInterval time.Duration
		wantDetailWorkers  int
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:               "MissingDatabaseURLAllowed",
			env:                map[string]string{},
			opts:               []Option{WithoutDatabase()},
			wantGRPCAddr:       ":9090",
			wantHTTPAddr:       ":8080",
			wantDetailInterval: 2 * time.Second,
			wantDetailWorkers:  5,
		},
		{
			name:               "Defaults",
			env:                map[string]string{"VENUESYNC_DATABASE_URL": "postgres://localhost/venuesync"},
			wantGRPCAddr:       ":9090",
			wantHTTPAddr:       ":8080",
			wantDetailInterval: 2 * time.Second,
			wantDetailWorkers:  5,
		},
		{
			name: "Overrides",
			env: map[string]string{
				"VENUESYNC_DATABASE_URL":       "postgres://db:5432/venuesync",
				"VENUESYNC_GRPC_ADDR":          ":5050",
				"VENUESYNC_HTTP_ADDR":          ":3000",
				"VENUESYNC_DETAIL_INTERVAL":    "500ms",
				"VENUESYNC_DETAIL_CONCURRENCY": "12",
			},
			wantGRPCAddr:       ":5050",
			wantHTTPAddr:       ":3000",
			wantDetailInterval: 500 * time.Millisecond,
			wantDetailWorkers:  12,
		},
		{
			name: "BadDuration",
			env: map[string]string{
				"VENUESYNC_DATABASE_URL": "postgres://localhost/venuesync",
				"VENUESYNC_JOB_TIMEOUT":  "soon",
			},
			wantErr: true,
		},
		{
			name: "ZeroConcurrency",
			env: map[string]string{
				"VENUESYNC_DATABASE_URL":          "postgres://localhost/venuesync",
				"VENUESYNC_DISCOVERY_CONCURRENCY": "0",
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["VENUESYNC_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["VENUESYNC_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.DetailInterval != tc.wantDetailInterval {
				t.Errorf("DetailInterval = %v, want %v", cfg.DetailInterval, tc.wantDetailInterval)
			}
			if cfg.DetailConcurrency != tc.wantDetailWorkers {
				t.Errorf("DetailConcurrency = %d, want %d", cfg.DetailConcurrency, tc.wantDetailWorkers)
			}
		})
	}
}

func TestLoad_TimingDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("VENUESYNC_DATABASE_URL", "postgres://localhost/venuesync")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DiscoveryInterval != 24*time.Hour {
		t.Errorf("DiscoveryInterval = %v, want 24h", cfg.DiscoveryInterval)
	}
	if cfg.DedupWindow != time.Hour {
		t.Errorf("DedupWindow = %v, want 1h", cfg.DedupWindow)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Errorf("JobTimeout = %v, want 2m", cfg.JobTimeout)
	}
	if cfg.PhotoS3Region != "us-east-1" {
		t.Errorf("PhotoS3Region = %q, want us-east-1", cfg.PhotoS3Region)
	}
}

func writeSources(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSources(t *testing.T) {
	path := writeSources(t, `
[[source]]
name = "Quiz API"
slug = "quiz-api"
kind = "json_api"
listing_url = "https://api.example.com/venues"
detail_interval = "5s"

[source.json]
items = "data.venues"
name = "name"
address = "address"
schedule = "schedule"

[[source]]
name = "Pub Listings"
slug = "pub-listings"
kind = "html"
listing_url = "https://pubs.example.com/quiz"

[source.html]
item = ".venue"
name = ".venue-name"
address = ".venue-address"
link = "a.more"

[source.html.detail]
description = ".about"
hero_image = "img.hero"
`)

	cfg, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Sources))
	}
	api, ok := cfg.Lookup("quiz-api")
	if !ok {
		t.Fatal("quiz-api not found")
	}
	if api.DetailInterval != 5*time.Second {
		t.Errorf("DetailInterval = %v, want 5s", api.DetailInterval)
	}
	if api.JSON == nil || api.JSON.Items != "data.venues" {
		t.Errorf("JSON = %+v", api.JSON)
	}
	html, _ := cfg.Lookup("pub-listings")
	if html.HTML == nil || html.HTML.Detail.HeroImage != "img.hero" {
		t.Errorf("HTML = %+v", html.HTML)
	}
	if _, ok := cfg.Lookup("missing"); ok {
		t.Error("Lookup(missing) = true")
	}
}

func TestLoadSources_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{
			name: "UnknownKind",
			body: `
[[source]]
name = "X"
slug = "x"
kind = "ftp"
listing_url = "https://x.example.com"
`,
		},
		{
			name: "JSONWithoutFields",
			body: `
[[source]]
name = "X"
slug = "x"
kind = "json_api"
listing_url = "https://x.example.com"
`,
		},
		{
			name: "ScrapingWithoutService",
			body: `
[[source]]
name = "X"
slug = "x"
kind = "scraping_service"
listing_url = "https://x.example.com"

[source.html]
item = ".v"
name = ".n"
address = ".a"
`,
		},
		{
			name: "DuplicateSlug",
			body: `
[[source]]
name = "X"
slug = "x"
kind = "html"
listing_url = "https://x.example.com"
[source.html]
item = ".v"
name = ".n"
address = ".a"

[[source]]
name = "Y"
slug = "x"
kind = "html"
listing_url = "https://y.example.com"
[source.html]
item = ".v"
name = ".n"
address = ".a"
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSources(writeSources(t, tc.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v, want *model.ValidationError", err)
			}
		})
	}
}

func TestScrapingServiceAPIKey(t *testing.T) {
	s := &ScrapingService{Endpoint: "https://scrape.example.com", APIKeyEnv: "TEST_SCRAPER_KEY"}
	t.Setenv("TEST_SCRAPER_KEY", "")
	if _, err := s.APIKey(); err == nil {
		t.Error("expected error for missing key")
	}
	t.Setenv("TEST_SCRAPER_KEY", "secret")
	key, err := s.APIKey()
	if err != nil || key != "secret" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}
}

func TestLoadSources_Example(t *testing.T) {
	cfg, err := LoadSources(filepath.Join("..", "..", "sources.example.toml"))
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(cfg.Sources))
	}
	sc, ok := cfg.Lookup("quiz-league")
	if !ok {
		t.Fatal("quiz-league not found")
	}
	if sc.DetailInterval != 3*time.Second {
		t.Errorf("DetailInterval = %v, want 3s", sc.DetailInterval)
	}
	if sc.JSON == nil || sc.JSON.Items != "data.venues" {
		t.Errorf("JSON fields = %+v", sc.JSON)
	}
	if sc, _ := cfg.Lookup("trivia-nights"); sc.ScrapingService == nil || !sc.ScrapingService.Render {
		t.Errorf("scraping service = %+v", sc.ScrapingService)
	}
}
