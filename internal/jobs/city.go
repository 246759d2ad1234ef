package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// CityCoordinatesWorker sets each city's coordinates to the mean of its
// resolved venues.
type CityCoordinatesWorker struct {
	Store  store.Store
	Logger *slog.Logger
}

func (CityCoordinatesWorker) Kind() string { return KindCityCoordinates }

func (w CityCoordinatesWorker) Work(ctx context.Context, _ *model.Job) error {
	n, err := w.Store.RefreshCityCoordinates(ctx)
	if err != nil {
		return fmt.Errorf("refresh city coordinates: %w", err)
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("city coordinates refreshed", "cities", n)
	return nil
}
