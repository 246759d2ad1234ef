package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store/memory"
	"github.com/alfredjeanlab/venuesync/internal/worker"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:     "discover <source>",
	Short:   "Enqueue a discovery job for a source",
	GroupID: "pipeline",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		slug := args[0]
		if _, _, err := a.set.Get(slug); err != nil {
			return err
		}
		inserted, err := jobs.EnqueueDiscovery(ctx, a.store, slug, 0)
		if err != nil {
			return err
		}
		if !inserted {
			fmt.Printf("Discovery for %s is already queued\n", slug)
			return nil
		}
		fmt.Printf("Queued discovery for %s\n", slug)
		return nil
	},
}

var runOnceCmd = &cobra.Command{
	Use:     "run-once <source>",
	Short:   "Run discovery and every resulting job inline, without delays",
	GroupID: "pipeline",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useMemory, _ := cmd.Flags().GetBool("memory")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		a, err := newApp(ctx, appOptions{memory: useMemory})
		if err != nil {
			return err
		}
		defer a.close()

		slug := args[0]
		if _, _, err := a.set.Get(slug); err != nil {
			return err
		}

		pool := worker.New(a.store, worker.WithJobTimeout(a.cfg.JobTimeout), worker.WithLogger(a.logger))
		a.register(pool)

		if _, err := jobs.Insert(ctx, a.store, jobs.DiscoveryArgs{Source: slug}, jobs.InsertOpts{}); err != nil {
			return err
		}
		start := time.Now()
		n, err := pool.Drain(ctx, jobs.Queues()...)
		if err != nil {
			return err
		}
		a.logger.Info("run complete", "source", slug, "jobs", n, "duration", time.Since(start))

		if mem, ok := a.store.(*memory.Store); ok {
			printRunSummary(mem)
		}
		return nil
	},
}

func init() {
	runOnceCmd.Flags().Bool("memory", false, "use an in-memory store (dry run)")
	runOnceCmd.Flags().Duration("timeout", 0, "abort the run after this long (0 = no limit)")
}

func printRunSummary(s *memory.Store) {
	states := map[model.JobState]int{}
	for _, j := range s.Jobs() {
		states[j.State]++
	}
	if jsonOutput {
		printJSON(map[string]any{
			"venues":        s.Venues(),
			"events":        s.Events(),
			"event_sources": s.EventSources(),
			"jobs":          states,
		})
		return
	}

	venues := map[int64]*model.Venue{}
	for _, v := range s.Venues() {
		venues[v.ID] = v
	}
	for _, e := range s.Events() {
		name := ""
		if v := venues[e.VenueID]; v != nil {
			name = v.Name
		}
		printEventRow(name, e)
	}
	fmt.Printf("\n%d venues, %d events; jobs: %d completed, %d discarded\n",
		len(s.Venues()), len(s.Events()), states[model.JobCompleted], states[model.JobDiscarded])
}
