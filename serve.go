package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graphsync/internal/config"
	"github.com/tonimelisma/graphsync/internal/subscription"
	"github.com/tonimelisma/graphsync/internal/sync"
	"github.com/tonimelisma/graphsync/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and renewal scheduler",
		Long: "Serves the notification endpoint plus GET /subscribe, /subscriptions and /status. " +
			"The renewal scheduler starts after the first subscription is created.",
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(os.Stderr)

	if cfg.Server.PublicURL == "" {
		return errors.New("public_url is required to serve " +
			"(set [server] public_url, " + config.EnvPublicURL + " or --public-url)")
	}

	if err := config.RequireCredentials(cfg); err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger, "webhook server and renewal scheduler")

	client, err := newGraphClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	schedule, err := subscription.ParseSchedule(cfg.Renewal.CheckSchedule)
	if err != nil {
		return err
	}

	view, err := sync.OpenView(ctx, cfg.View.DBPath, logger)
	if err != nil {
		return err
	}
	defer view.Close()

	engine := sync.NewEngine(client, sync.MultiSink{sync.LogSink{Logger: logger}, view}, cfg.Graph.Select, logger)

	registry := subscription.NewRegistry(client, subscription.Options{
		MaxLifetime: cfg.Subscription.MaxLifetimeDuration(),
		ClientState: cfg.Subscription.ClientState,
	}, logger)

	scheduler := subscription.NewScheduler(registry, subscription.SchedulerConfig{
		InitialDelay: cfg.Renewal.InitialDelayDuration(),
		Schedule:     schedule,
		Window:       cfg.Renewal.WindowDuration(),
		Extension:    cfg.Renewal.ExtensionDuration(),
	}, logger)

	registry.OnFirstCreate(func() {
		scheduler.Start(ctx)
	})

	srv := webhook.NewServer(webhook.ServerConfig{
		ListenAddr:      cfg.Server.ListenAddr,
		WebhookPath:     cfg.Server.WebhookPath,
		NotificationURL: cfg.NotificationURL(),
		Resource:        cfg.Subscription.Resource,
		ChangeType:      cfg.Subscription.ChangeType,
		Lifetime:        cfg.Subscription.LifetimeDuration(),
	}, registry, engine, scheduler, view, logger)

	statusf(flagQuiet, "Listening on %s; notifications go to %s\n", cfg.Server.ListenAddr, cfg.NotificationURL())

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	if scheduler.Running() {
		<-scheduler.Done()
	}

	st := engine.Stats()
	logger.Info("graphsync stopped",
		slog.Int64("walks", st.Walks),
		slog.Int64("items", st.Items),
		slog.Int("subscriptions", registry.Len()),
	)

	return nil
}
