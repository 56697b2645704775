package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graphsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	if flagJSON {
		redacted := *resolvedCfg
		if redacted.App.ClientSecret != "" {
			redacted.App.ClientSecret = "********"
		}

		if redacted.Subscription.ClientState != "" {
			redacted.Subscription.ClientState = "********"
		}

		return printJSON(os.Stdout, redacted)
	}

	return config.RenderEffective(resolvedCfg, os.Stdout)
}
