package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graphsync/internal/subscription"
	"github.com/tonimelisma/graphsync/internal/webhook"
)

func newSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Ask a running server to create a Graph subscription",
		RunE:  runSubscribe,
	}

	addServerFlag(cmd)

	return cmd
}

func runSubscribe(cmd *cobra.Command, _ []string) error {
	base := serverBaseURL(resolvedCfg.Server.ListenAddr)

	var resp webhook.SubscribeResponse
	if err := fetchJSON(cmd.Context(), newHTTPClient(remoteTimeout), base+"/subscribe", &resp); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	if flagJSON {
		return printJSON(os.Stdout, resp)
	}

	fmt.Printf("Subscribed. Id: %s, Expiration: %s\n", resp.ID, formatExpiry(resp.ExpiresAt, time.Now()))

	return nil
}

func newSubscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List subscriptions held by a running server",
		RunE:  runSubscriptions,
	}

	addServerFlag(cmd)

	return cmd
}

func runSubscriptions(cmd *cobra.Command, _ []string) error {
	base := serverBaseURL(resolvedCfg.Server.ListenAddr)

	var subs []subscription.Subscription
	if err := fetchJSON(cmd.Context(), newHTTPClient(remoteTimeout), base+"/subscriptions", &subs); err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}

	if flagJSON {
		return printJSON(os.Stdout, subs)
	}

	if len(subs) == 0 {
		statusf(flagQuiet, "No subscriptions.\n")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(subs))

	for i := range subs {
		s := &subs[i]
		rows = append(rows, []string{s.ID, s.Resource, s.ChangeType, formatExpiry(s.ExpiresAt, now)})
	}

	printTable(os.Stdout, []string{"ID", "RESOURCE", "CHANGE", "EXPIRES"}, rows)

	return nil
}
