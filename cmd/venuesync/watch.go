package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream job outcome and pipeline events from NATS",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			return fmt.Errorf("--nats-url or VENUESYNC_NATS_URL is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		return streamEvents(ctx, sub, cmd.OutOrStdout(), jsonOutput)
	},
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("VENUESYNC_NATS_URL"), "NATS server URL")
}

// streamEvents prints every pipeline event from sub until ctx is done. Raw
// payloads are printed as-is when asJSON is set.
func streamEvents(ctx context.Context, sub events.Subscriber, w io.Writer, asJSON bool) error {
	msgs, err := sub.Subscribe(ctx, events.Topics()...)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	for m := range msgs {
		if asJSON {
			fmt.Fprintln(w, string(m.Data))
			continue
		}
		fmt.Fprintln(w, formatMessage(m))
	}
	return nil
}

// formatMessage renders one event as a single line. Payloads that do not
// decode are printed raw after their topic.
func formatMessage(m events.Message) string {
	ev, err := m.Decode()
	if err != nil {
		return m.Topic + " " + string(m.Data)
	}
	switch ev := ev.(type) {
	case *events.JobOutcome:
		status := "ok"
		if ev.Outcome.Error != "" {
			status = "error"
		}
		line := fmt.Sprintf("%s %s %s attempt=%d", ui.RenderOutcome(status), ev.Kind, ui.RenderMuted(ev.JobID), ev.Attempt)
		if ev.Source != "" {
			line += " source=" + ev.Source
		}
		if ev.Outcome.VenueID != nil {
			line += fmt.Sprintf(" venue=%d", *ev.Outcome.VenueID)
		}
		if ev.Outcome.EventID != nil {
			line += fmt.Sprintf(" event=%d", *ev.Outcome.EventID)
		}
		if ev.Outcome.Error != "" {
			line += fmt.Sprintf(" error=%q", ev.Outcome.Error)
		}
		return line
	case *events.DiscoveryCompleted:
		return fmt.Sprintf("%s %s discovered=%d enqueued=%d duplicates=%d",
			ui.RenderAccent("discovery"), ev.Source, ev.Discovered, ev.Enqueued, ev.Duplicates)
	case *events.VenueDeleted:
		return fmt.Sprintf("%s %s id=%d photo_errors=%d", ui.RenderAccent("deleted"), ev.Slug, ev.VenueID, ev.PhotoErrors)
	}
	return m.Topic + " " + string(m.Data)
}
