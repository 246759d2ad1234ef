package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/store"
)

// Periodic enqueues discovery for every source and the city coordinates
// job on fixed intervals.
type Periodic struct {
	store             store.Store
	sources           []string
	discoveryInterval time.Duration
	cityInterval      time.Duration
	logger            *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeriodic creates an enqueuer for the given source slugs.
func NewPeriodic(s store.Store, sources []string, discoveryInterval, cityInterval time.Duration, logger *slog.Logger) *Periodic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Periodic{
		store:             s,
		sources:           sources,
		discoveryInterval: discoveryInterval,
		cityInterval:      cityInterval,
		logger:            logger,
	}
}

// Start enqueues everything once immediately, then on each tick. A zero
// interval disables that half.
func (p *Periodic) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.every(ctx, p.discoveryInterval, p.enqueueDiscovery)
	}()
	go func() {
		defer p.wg.Done()
		p.every(ctx, p.cityInterval, p.enqueueCity)
	}()
}

// Stop cancels the enqueuer and waits for an in-progress round to finish.
func (p *Periodic) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Periodic) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (p *Periodic) enqueueDiscovery(ctx context.Context) {
	for _, slug := range p.sources {
		if _, err := EnqueueDiscovery(ctx, p.store, slug, p.discoveryInterval); err != nil {
			p.logger.Error("enqueue discovery failed", "source", slug, "err", err)
		}
	}
}

func (p *Periodic) enqueueCity(ctx context.Context) {
	now := time.Now()
	_, inserted, err := InsertUnique(ctx, p.store, CityCoordinatesArgs{},
		InsertOpts{UniqueKey: KindCityCoordinates}, now.Add(-p.cityInterval/2), now)
	if err != nil {
		p.logger.Error("enqueue city coordinates failed", "err", err)
		return
	}
	if inserted {
		p.logger.Info("city coordinates enqueued")
	}
}

// EnqueueDiscovery inserts a discovery job for slug unless one is active or
// completed within half of interval. It reports whether a job was inserted.
func EnqueueDiscovery(ctx context.Context, s store.Store, slug string, interval time.Duration) (bool, error) {
	now := time.Now()
	_, inserted, err := InsertUnique(ctx, s, DiscoveryArgs{Source: slug},
		InsertOpts{UniqueKey: "discovery:" + slug}, now.Add(-interval/2), now)
	return inserted, err
}
