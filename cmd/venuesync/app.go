package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/geocode"
	"github.com/alfredjeanlab/venuesync/internal/httpclient"
	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/photos"
	"github.com/alfredjeanlab/venuesync/internal/reconcile"
	"github.com/alfredjeanlab/venuesync/internal/store"
	"github.com/alfredjeanlab/venuesync/internal/store/memory"
	"github.com/alfredjeanlab/venuesync/internal/store/postgres"
	"github.com/alfredjeanlab/venuesync/internal/worker"
)

type appOptions struct {
	// memory runs against an in-process store instead of Postgres.
	memory bool
	// requireMaps fails startup when the mapping API key is missing.
	requireMaps bool
	// noSources skips loading the sources file.
	noSources bool
}

// app holds the wired pipeline components shared by the commands.
type app struct {
	cfg       *config.Config
	sources   *config.SourcesConfig
	store     store.Store
	publisher events.Publisher
	client    *http.Client
	set       *jobs.SourceSet
	resolver  reconcile.Resolver
	photos    *photos.Cache
	refresher reconcile.PhotoRefresher
	venues    *reconcile.VenueReconciler
	events    *reconcile.EventReconciler
	recorder  *jobs.Recorder
	logger    *slog.Logger
}

func newApp(ctx context.Context, opts appOptions) (a *app, err error) {
	var loadOpts []config.Option
	if opts.memory {
		loadOpts = append(loadOpts, config.WithoutDatabase())
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, logger: logger, client: httpclient.New(cfg.HTTPTimeout)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if !opts.noSources {
		path := sourcesFile
		if path == "" {
			path = cfg.SourcesFile
		}
		a.sources, err = config.LoadSources(path)
		if err != nil {
			return a, err
		}
	} else {
		a.sources = &config.SourcesConfig{}
	}

	if opts.memory {
		a.store = memory.New()
		logger.Info("using in-memory store")
	} else {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return a, err
		}
		a.store = pg
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return a, err
		}
		a.publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		a.publisher = &events.NoopPublisher{}
		logger.Info("events disabled (VENUESYNC_NATS_URL not set)")
	}

	if err := a.wireMaps(ctx, opts.requireMaps); err != nil {
		return a, err
	}

	a.set = jobs.NewSourceSet(a.sources, a.client, logger)
	for slug, serr := range a.set.Errors() {
		logger.Warn("source unavailable", "source", slug, "err", serr)
	}
	if err := a.set.Ensure(ctx, a.store); err != nil {
		return a, err
	}

	a.venues = reconcile.NewVenueReconciler(a.store, a.resolver, a.refresher, logger)
	a.events = reconcile.NewEventReconciler(a.store, logger)
	a.recorder = jobs.NewRecorder(a.store, a.publisher, logger)
	return a, nil
}

// wireMaps builds the address resolver and the photo cache. Without an API
// key both are left nil unless required.
func (a *app) wireMaps(ctx context.Context, required bool) error {
	key := a.cfg.GoogleMapsAPIKey
	res, err := geocode.New(key, geocode.WithHTTPClient(a.client), geocode.WithLogger(a.logger))
	if err != nil {
		if required {
			return fmt.Errorf("VENUESYNC_GOOGLE_MAPS_API_KEY: %w", err)
		}
		a.logger.Warn("geocoding and photos disabled", "err", err)
		return nil
	}
	a.resolver = res

	src, err := photos.NewPlacesSource(key, photos.WithPlacesHTTPClient(a.client))
	if err != nil {
		return err
	}
	files, err := a.fileStore(ctx)
	if err != nil {
		return err
	}
	a.photos = photos.New(src, files, a.store, photos.WithHTTPClient(a.client), photos.WithLogger(a.logger))
	a.refresher = a.photos
	return nil
}

func (a *app) fileStore(ctx context.Context) (photos.FileStore, error) {
	if a.cfg.PhotoS3Bucket == "" {
		a.logger.Info("photo storage on local disk", "dir", a.cfg.PhotoDir)
		return photos.NewLocalStore(a.cfg.PhotoDir), nil
	}
	s3, err := photos.NewS3Store(ctx, a.cfg.PhotoS3Bucket, a.cfg.PhotoS3Region, a.cfg.PhotoS3Endpoint)
	if err != nil {
		return nil, fmt.Errorf("photo S3 store: %w", err)
	}
	a.logger.Info("photo storage on S3", "bucket", a.cfg.PhotoS3Bucket)
	return s3, nil
}

// register adds every job worker to the pool.
func (a *app) register(p *worker.Pool) {
	scheduler := jobs.NewRateLimitedScheduler(a.store, a.cfg.DetailInterval, a.cfg.DedupWindow, a.logger)
	p.Register(jobs.DiscoveryWorker{
		Sources:   a.set,
		Scheduler: scheduler,
		Recorder:  a.recorder,
		Publisher: a.publisher,
		Logger:    a.logger,
	})
	p.Register(jobs.DetailWorker{
		Store:    a.store,
		Sources:  a.set,
		Venues:   a.venues,
		Events:   a.events,
		Recorder: a.recorder,
		Logger:   a.logger,
	})
	p.Register(jobs.EnrichmentWorker{
		Store:    a.store,
		Venues:   a.venues,
		Photos:   a.refresher,
		Recorder: a.recorder,
		Logger:   a.logger,
	})
	p.Register(jobs.CityCoordinatesWorker{Store: a.store, Logger: a.logger})
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("error closing publisher", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing store", "err", err)
		}
	}
}
