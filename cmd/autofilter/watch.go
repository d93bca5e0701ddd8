package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/events"
)

const watchPollInterval = 30 * time.Second

func newWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow tab opens and closes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts.client(), cmd.OutOrStdout())
		},
	}
}

func runWatch(ctx context.Context, c *apiClient, w io.Writer) error {
	render := func() error {
		report, err := fetchStatus(ctx, c, time.Now())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "\n%s\n%s\n", time.Now().Format("15:04:05"), renderStatus(report))
		return err
	}
	if err := render(); err != nil {
		return err
	}

	evts := make(chan events.Event, 16)
	go streamEvents(ctx, c, evts)

	poll := time.NewTicker(watchPollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-evts:
			switch evt.Type {
			case events.TokenOpened:
				_, _ = fmt.Fprintf(w, "+ opened %s on %s (tab %s)\n", evt.TokenID, evt.Chain, evt.TabID)
			case events.TokenTabClosed:
				_, _ = fmt.Fprintf(w, "- closed tab for %s\n", evt.TokenID)
			case events.SettingsChanged:
				_, _ = fmt.Fprintln(w, "* settings changed")
			default:
				continue
			}
		case <-poll.C:
		}
		if err := render(); err != nil {
			slog.Warn("refresh failed", "err", err)
		}
	}
}

// streamEvents keeps a WebSocket to the daemon open and forwards its events.
// Dropped connections are retried with backoff until ctx is done.
func streamEvents(ctx context.Context, c *apiClient, out chan<- events.Event) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := readEvents(ctx, c, out)
		if ctx.Err() != nil {
			return
		}
		slog.Debug("event stream interrupted", "err", err, "retry", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, watchPollInterval)
	}
}

func readEvents(ctx context.Context, c *apiClient, out chan<- events.Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL("/events"), c.authHeader())
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var evt events.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
