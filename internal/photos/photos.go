// Package photos keeps each venue's cached place photography fresh.
package photos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/httpclient"
	"github.com/alfredjeanlab/venuesync/internal/metrics"
	"github.com/alfredjeanlab/venuesync/internal/model"
)

const (
	// MaxPhotos is the number of photos cached per venue.
	MaxPhotos = model.MaxPlaceImages
	// StaleAfter is how long a full photo set stays fresh.
	StaleAfter = 90 * 24 * time.Hour
	// DefaultDownloadTimeout bounds each photo download.
	DefaultDownloadTimeout = 15 * time.Second
	// KeyPrefix is the top-level directory for cached place photos.
	KeyPrefix = "google_place_images"
)

// Photo file variants.
const (
	VariantOriginal = "original"
	VariantThumb    = "thumb"
)

var errNoPhotos = errors.New("photo API returned no photos")

// Source lists photo URLs for a place, best first.
type Source interface {
	PhotoURLs(ctx context.Context, placeID string, max int) ([]string, error)
}

// Writer persists a venue's refreshed photo metadata.
type Writer interface {
	UpdateVenuePhotos(ctx context.Context, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error
}

// Outcome classifies one MaybeRefresh call.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeFallback  Outcome = "fallback" // every download failed; raw URLs stored
	OutcomeFailed    Outcome = "failed"
)

// Result reports what MaybeRefresh did. Err is set only for OutcomeFailed.
type Result struct {
	Outcome    Outcome
	Downloaded int
	Err        error
}

// Cache decides when a venue's photos are stale and replaces them.
type Cache struct {
	source          Source
	files           FileStore
	writer          Writer
	client          *http.Client
	downloadTimeout time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used for photo downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(pc *Cache) { pc.client = c }
}

// WithDownloadTimeout overrides DefaultDownloadTimeout.
func WithDownloadTimeout(d time.Duration) Option {
	return func(pc *Cache) { pc.downloadTimeout = d }
}

// WithClock sets the time source used for staleness and fetched_at.
func WithClock(now func() time.Time) Option {
	return func(pc *Cache) { pc.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pc *Cache) { pc.logger = l }
}

// New returns a Cache reading photos from source, storing files in files and
// persisting metadata through writer.
func New(source Source, files FileStore, writer Writer, opts ...Option) *Cache {
	pc := &Cache{
		source:          source,
		files:           files,
		writer:          writer,
		client:          httpclient.New(DefaultDownloadTimeout),
		downloadTimeout: DefaultDownloadTimeout,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// NeedsRefresh reports whether v has a place id and its photo set is
// incomplete, undated, or older than StaleAfter at now.
func NeedsRefresh(v *model.Venue, now time.Time) bool {
	if v == nil || strings.TrimSpace(v.PlaceID) == "" {
		return false
	}
	if len(v.PlaceImages) < MaxPhotos {
		return true
	}
	if v.PhotosUpdatedAt == nil {
		return true
	}
	return now.Sub(*v.PhotosUpdatedAt) > StaleAfter
}

// MaybeRefresh refreshes v's photos when NeedsRefresh says so. It never
// fails: on any error it returns v unchanged and reports the cause in Result.
func (pc *Cache) MaybeRefresh(ctx context.Context, v *model.Venue) (*model.Venue, Result) {
	if !NeedsRefresh(v, pc.now()) {
		metrics.PhotoRefreshes.WithLabelValues(string(OutcomeSkipped)).Inc()
		return v, Result{Outcome: OutcomeSkipped}
	}

	updated, res := pc.refresh(ctx, v)
	metrics.PhotoRefreshes.WithLabelValues(string(res.Outcome)).Inc()
	switch res.Outcome {
	case OutcomeFailed:
		pc.logger.Warn("photo refresh failed", "venue_id", v.ID, "place_id", v.PlaceID, "err", res.Err)
		return v, res
	case OutcomeFallback:
		pc.logger.Warn("all photo downloads failed, storing source URLs", "venue_id", v.ID, "count", len(updated.PlaceImages))
	default:
		pc.logger.Info("photos refreshed", "venue_id", v.ID, "count", res.Downloaded)
	}
	return updated, res
}

func (pc *Cache) refresh(ctx context.Context, v *model.Venue) (*model.Venue, Result) {
	urls, err := pc.source.PhotoURLs(ctx, v.PlaceID, MaxPhotos)
	if err != nil {
		return v, Result{Outcome: OutcomeFailed, Err: fmt.Errorf("list photos: %w", err)}
	}
	if len(urls) == 0 {
		return v, Result{Outcome: OutcomeFailed, Err: errNoPhotos}
	}
	if len(urls) > MaxPhotos {
		urls = urls[:MaxPhotos]
	}

	now := pc.now().UTC()
	images := make([]model.PlaceImage, 0, len(urls))
	downloaded := 0
	for i, u := range urls {
		pos := i + 1
		img := model.PlaceImage{
			ExternalRef: ExtractRef(u),
			OriginalURL: u,
			FetchedAt:   now,
			Position:    pos,
		}
		key, err := pc.store(ctx, v, pos, u)
		if err != nil {
			pc.logger.Debug("photo download failed", "venue_id", v.ID, "position", pos, "err", err)
		} else {
			img.LocalPath = key
			downloaded++
		}
		images = append(images, img)
	}

	outcome := OutcomeRefreshed
	if downloaded == 0 {
		outcome = OutcomeFallback
	} else {
		// Keep only photos that made it to storage, at their original positions.
		kept := images[:0]
		for _, img := range images {
			if img.LocalPath != "" {
				kept = append(kept, img)
			}
		}
		images = kept
	}

	if err := pc.writer.UpdateVenuePhotos(ctx, v.ID, images, now); err != nil {
		return v, Result{Outcome: OutcomeFailed, Err: fmt.Errorf("persist photos: %w", err)}
	}

	updated := *v
	updated.PlaceImages = images
	updated.PhotosUpdatedAt = &now
	return &updated, Result{Outcome: outcome, Downloaded: downloaded}
}

// store downloads u and writes it under the venue's key for pos.
func (pc *Cache) store(ctx context.Context, v *model.Venue, pos int, u string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.downloadTimeout)
	defer cancel()

	data, ext, contentType, err := pc.download(ctx, u)
	if err != nil {
		return "", err
	}
	key := FileKey(v, VariantOriginal, pos, ext)
	if err := pc.files.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}

// FileKey returns the storage key for one photo variant,
// google_place_images/{slug}/{variant}_{pos}{ext}. The venue id stands in
// for an empty slug.
func FileKey(v *model.Venue, variant string, pos int, ext string) string {
	dir := v.Slug
	if dir == "" {
		dir = strconv.FormatInt(v.ID, 10)
	}
	return path.Join(KeyPrefix, dir, variant+"_"+strconv.Itoa(pos)+ext)
}

// DeleteVenueImages removes the original and thumbnail file of every cached
// photo. Every file is attempted; failures are joined into the returned error.
func (pc *Cache) DeleteVenueImages(ctx context.Context, v *model.Venue) error {
	var errs []error
	for _, img := range v.PlaceImages {
		if img.LocalPath == "" {
			continue
		}
		ext := path.Ext(img.LocalPath)
		for _, variant := range []string{VariantOriginal, VariantThumb} {
			key := FileKey(v, variant, img.Position, ext)
			if variant == VariantOriginal {
				key = img.LocalPath
			}
			if err := pc.files.Delete(ctx, key); err != nil {
				pc.logger.Warn("delete photo file failed", "venue_id", v.ID, "key", key, "err", err)
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}
