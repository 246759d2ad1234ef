package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/ops"
	"github.com/alfredjeanlab/venuesync/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:     "worker",
	Short:   "Run the job workers, the periodic enqueuer and the ops servers",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{requireMaps: true})
		if err != nil {
			return err
		}
		defer a.close()
		cfg := a.cfg

		pool := worker.New(a.store,
			worker.WithQueue(jobs.QueueDiscovery, cfg.DiscoveryConcurrency),
			worker.WithQueue(jobs.QueueMaintenance, cfg.MaintenanceConcurrency),
			worker.WithQueue(jobs.QueueDetails, cfg.DetailConcurrency),
			worker.WithQueue(jobs.QueueEnrichment, cfg.EnrichmentConcurrency),
			worker.WithJobTimeout(cfg.JobTimeout),
			worker.WithLogger(a.logger),
		)
		a.register(pool)

		opsServer := ops.NewServer(a.store, cfg.HTTPAddr, cfg.GRPCAddr, a.logger)
		if err := opsServer.Start(); err != nil {
			return err
		}

		pool.Start()
		periodic := jobs.NewPeriodic(a.store, a.set.Slugs(), cfg.DiscoveryInterval, cfg.CityRefreshInterval, a.logger)
		periodic.Start()

		a.logger.Info("venuesync worker started",
			"sources", len(a.set.Slugs()),
			"http_addr", opsServer.HTTPAddr(),
			"grpc_addr", opsServer.GRPCAddr(),
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		a.logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown: stop enqueuing, let running jobs finish, then
		// take the ops surface down.
		periodic.Stop()
		a.logger.Info("periodic enqueuer stopped")

		pool.Stop()
		a.logger.Info("worker pool stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("ops server shutdown error", "err", err)
		}

		a.logger.Info("shutdown complete")
		return nil
	},
}
