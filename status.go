package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graphsync/internal/webhook"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync and renewal state of a running server",
		RunE:  runStatus,
	}

	addServerFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	base := serverBaseURL(resolvedCfg.Server.ListenAddr)

	var st webhook.StatusResponse
	if err := fetchJSON(cmd.Context(), newHTTPClient(remoteTimeout), base+"/status", &st); err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	if flagJSON {
		return printJSON(os.Stdout, st)
	}

	printStatus(os.Stdout, &st)

	return nil
}

func printStatus(w io.Writer, st *webhook.StatusResponse) {
	fmt.Fprintf(w, "Subscriptions:     %d (scheduler running: %t)\n", st.Subscriptions, st.SchedulerRunning)
	fmt.Fprintf(w, "Delta cursor:      %t\n", st.CursorPresent)
	fmt.Fprintf(w, "Walks:             %d (%d failed, %d coalesced, %d items)\n",
		st.Engine.Walks, st.Engine.Failures, st.Engine.Coalesced, st.Engine.Items)
	fmt.Fprintf(w, "Notifications:     %d deliveries, %d accepted, %d ignored, %d malformed\n",
		st.Dispatcher.Deliveries, st.Dispatcher.Accepted, st.Dispatcher.Ignored, st.Dispatcher.Malformed)

	if st.Scheduler != nil {
		fmt.Fprintf(w, "Renewals:          %d renewed, %d failed over %d ticks\n",
			st.Scheduler.Renewed, st.Scheduler.Failures, st.Scheduler.Ticks)
	}

	if st.Objects != nil {
		fmt.Fprintf(w, "View objects:      %d\n", *st.Objects)
	}

	if st.LastSync != nil {
		fmt.Fprintf(w, "Last sync:         %s, %d items in %d pages\n",
			st.LastSync.CompletedAt.Local().Format(time.DateTime), st.LastSync.ItemsProcessed, st.LastSync.Pages)
	}

	if st.LastSyncError != "" {
		fmt.Fprintf(w, "Last sync error:   %s\n", st.LastSyncError)
	}
}
