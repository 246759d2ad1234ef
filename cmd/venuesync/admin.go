package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/photos"
	"github.com/alfredjeanlab/venuesync/internal/reconcile"
	"github.com/alfredjeanlab/venuesync/internal/ui"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve <address>",
	Short:   "Resolve an address through the mapping API",
	GroupID: "admin",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{memory: true, requireMaps: true, noSources: true})
		if err != nil {
			return err
		}
		defer a.close()

		place, err := a.resolver.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		printPlace(place)
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Short:   "List configured sources and whether they can run",
	GroupID: "admin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := sourcesFile
		if path == "" {
			path = os.Getenv("VENUESYNC_SOURCES_FILE")
		}
		if path == "" {
			path = "sources.toml"
		}
		cfg, err := config.LoadSources(path)
		if err != nil {
			return err
		}
		set := jobs.NewSourceSet(cfg, nil, logger)
		errs := set.Errors()

		if jsonOutput {
			out := make([]map[string]any, 0, len(cfg.Sources))
			for _, sc := range cfg.Sources {
				row := map[string]any{"slug": sc.Slug, "name": sc.Name, "kind": sc.Kind, "listing_url": sc.ListingURL}
				if err := errs[sc.Slug]; err != nil {
					row["error"] = err.Error()
				}
				out = append(out, row)
			}
			printJSON(out)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tKIND\tLISTING\tSTATUS")
		for _, sc := range cfg.Sources {
			status := "ok"
			if err := errs[sc.Slug]; err != nil {
				status = err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ui.RenderAccent(sc.Slug), sc.Kind, ui.RenderMuted(sc.ListingURL), status)
		}
		return w.Flush()
	},
}

var venueCmd = &cobra.Command{
	Use:     "venue",
	Short:   "Venue administration",
	GroupID: "admin",
}

var venueDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a venue, its events and its cached photo files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{noSources: true})
		if err != nil {
			return err
		}
		defer a.close()

		// Deleting files needs only the file store, not the photo API.
		cache := a.photos
		if cache == nil {
			files, err := a.fileStore(ctx)
			if err != nil {
				return err
			}
			cache = photos.New(nil, files, a.store, photos.WithLogger(a.logger))
		}

		res, err := reconcile.DeleteVenue(ctx, a.store, cache, args[0], a.logger)
		if err != nil {
			return err
		}

		ev := events.VenueDeleted{VenueID: res.Venue.ID, Slug: res.Venue.Slug, PhotoErrors: res.PhotoFailures}
		if err := a.publisher.Publish(ctx, events.TopicVenueDeleted, ev); err != nil {
			a.logger.Warn("publish venue deleted", "err", err)
		}

		fmt.Printf("Deleted venue %s (%d)\n", res.Venue.Slug, res.Venue.ID)
		if res.PhotoErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: some photo files could not be deleted: %v\n", res.PhotoErr)
		}
		return nil
	},
}

func init() {
	venueCmd.AddCommand(venueDeleteCmd)
}
