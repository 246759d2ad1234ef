package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/sources"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// SourceSet holds the configured sources and their extractors. A source
// whose extractor could not be built stays listed; its jobs fail as fatal.
type SourceSet struct {
	configs    map[string]config.SourceConfig
	extractors map[string]sources.Extractor
	errs       map[string]error
}

// NewSourceSet builds an extractor for every source in cfg.
func NewSourceSet(cfg *config.SourcesConfig, client *http.Client, logger *slog.Logger) *SourceSet {
	set := &SourceSet{
		configs:    make(map[string]config.SourceConfig),
		extractors: make(map[string]sources.Extractor),
		errs:       make(map[string]error),
	}
	for _, sc := range cfg.Sources {
		set.configs[sc.Slug] = sc
		x, err := sources.New(sc, client, logger)
		if err != nil {
			set.errs[sc.Slug] = err
			continue
		}
		set.extractors[sc.Slug] = x
	}
	return set
}

// Add registers an extractor directly.
func (s *SourceSet) Add(sc config.SourceConfig, x sources.Extractor) {
	s.configs[sc.Slug] = sc
	s.extractors[sc.Slug] = x
	delete(s.errs, sc.Slug)
}

// Get returns the configuration and extractor for slug.
func (s *SourceSet) Get(slug string) (config.SourceConfig, sources.Extractor, error) {
	sc, ok := s.configs[slug]
	if !ok {
		return config.SourceConfig{}, nil, Permanent(fmt.Errorf("unknown source %q", slug))
	}
	if err := s.errs[slug]; err != nil {
		return sc, nil, Fatal(err)
	}
	return sc, s.extractors[slug], nil
}

// Slugs returns every configured slug in sorted order.
func (s *SourceSet) Slugs() []string {
	out := make([]string, 0, len(s.configs))
	for slug := range s.configs {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Errors returns the extractor construction failures by slug.
func (s *SourceSet) Errors() map[string]error {
	return s.errs
}

// Ensure writes every source's reference row.
func (s *SourceSet) Ensure(ctx context.Context, st store.Store) error {
	for _, slug := range s.Slugs() {
		if err := st.EnsureSource(ctx, s.configs[slug].Source()); err != nil {
			return fmt.Errorf("ensure source %s: %w", slug, err)
		}
	}
	return nil
}
