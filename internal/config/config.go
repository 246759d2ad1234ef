package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // VENUESYNC_DATABASE_URL (required unless running against the memory store)
	GRPCAddr    string // VENUESYNC_GRPC_ADDR (default ":9090")
	HTTPAddr    string // VENUESYNC_HTTP_ADDR (default ":8080")
	NATSURL     string // VENUESYNC_NATS_URL (optional, empty = no outcome events)
	SourcesFile string // VENUESYNC_SOURCES_FILE (default "sources.toml")

	// Mapping API
	GoogleMapsAPIKey string // VENUESYNC_GOOGLE_MAPS_API_KEY (required by the worker)

	// Photo storage
	PhotoDir        string // VENUESYNC_PHOTO_DIR (default "uploads"; used when no bucket is set)
	PhotoS3Bucket   string // VENUESYNC_PHOTO_S3_BUCKET (enables S3 when set)
	PhotoS3Endpoint string // VENUESYNC_PHOTO_S3_ENDPOINT (custom endpoint for MinIO)
	PhotoS3Region   string // VENUESYNC_PHOTO_S3_REGION (default "us-east-1")

	// Scheduling
	DetailInterval      time.Duration // VENUESYNC_DETAIL_INTERVAL (default 2s)
	DiscoveryInterval   time.Duration // VENUESYNC_DISCOVERY_INTERVAL (default 24h; 0 = disabled)
	CityRefreshInterval time.Duration // VENUESYNC_CITY_REFRESH_INTERVAL (default 24h; 0 = disabled)
	DedupWindow         time.Duration // VENUESYNC_DEDUP_WINDOW (default 1h)
	JobTimeout          time.Duration // VENUESYNC_JOB_TIMEOUT (default 2m)
	HTTPTimeout         time.Duration // VENUESYNC_HTTP_TIMEOUT (default 30s)

	// Worker pool
	DiscoveryConcurrency   int // VENUESYNC_DISCOVERY_CONCURRENCY (default 1)
	DetailConcurrency      int // VENUESYNC_DETAIL_CONCURRENCY (default 5)
	EnrichmentConcurrency  int // VENUESYNC_ENRICHMENT_CONCURRENCY (default 2)
	MaintenanceConcurrency int // VENUESYNC_MAINTENANCE_CONCURRENCY (default 1)
}

// Option adjusts how Load validates the environment.
type Option func(*loadOptions)

type loadOptions struct {
	requireDatabase bool
}

// WithoutDatabase lets Load succeed when VENUESYNC_DATABASE_URL is unset.
func WithoutDatabase() Option {
	return func(o *loadOptions) { o.requireDatabase = false }
}

func Load(opts ...Option) (*Config, error) {
	lo := loadOptions{requireDatabase: true}
	for _, opt := range opts {
		opt(&lo)
	}

	c := &Config{
		DatabaseURL:      os.Getenv("VENUESYNC_DATABASE_URL"),
		GRPCAddr:         envOrDefault("VENUESYNC_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("VENUESYNC_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("VENUESYNC_NATS_URL"),
		SourcesFile:      envOrDefault("VENUESYNC_SOURCES_FILE", "sources.toml"),
		GoogleMapsAPIKey: os.Getenv("VENUESYNC_GOOGLE_MAPS_API_KEY"),
		PhotoDir:         envOrDefault("VENUESYNC_PHOTO_DIR", "uploads"),
		PhotoS3Bucket:    os.Getenv("VENUESYNC_PHOTO_S3_BUCKET"),
		PhotoS3Endpoint:  os.Getenv("VENUESYNC_PHOTO_S3_ENDPOINT"),
		PhotoS3Region:    envOrDefault("VENUESYNC_PHOTO_S3_REGION", "us-east-1"),
	}
	if lo.requireDatabase && c.DatabaseURL == "" {
		return nil, fmt.Errorf("VENUESYNC_DATABASE_URL is required")
	}

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"VENUESYNC_DETAIL_INTERVAL", "2s", &c.DetailInterval},
		{"VENUESYNC_DISCOVERY_INTERVAL", "24h", &c.DiscoveryInterval},
		{"VENUESYNC_CITY_REFRESH_INTERVAL", "24h", &c.CityRefreshInterval},
		{"VENUESYNC_DEDUP_WINDOW", "1h", &c.DedupWindow},
		{"VENUESYNC_JOB_TIMEOUT", "2m", &c.JobTimeout},
		{"VENUESYNC_HTTP_TIMEOUT", "30s", &c.HTTPTimeout},
	} {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}

	for _, n := range []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"VENUESYNC_DISCOVERY_CONCURRENCY", 1, &c.DiscoveryConcurrency},
		{"VENUESYNC_DETAIL_CONCURRENCY", 5, &c.DetailConcurrency},
		{"VENUESYNC_ENRICHMENT_CONCURRENCY", 2, &c.EnrichmentConcurrency},
		{"VENUESYNC_MAINTENANCE_CONCURRENCY", 1, &c.MaintenanceConcurrency},
	} {
		v, err := intOrDefault(n.key, n.fallback)
		if err != nil {
			return nil, err
		}
		*n.dst = v
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("%s: must be at least 1", key)
	}
	return v, nil
}
