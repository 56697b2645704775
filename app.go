package main

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/graphsync/internal/config"
	"github.com/tonimelisma/graphsync/internal/graph"
)

// newGraphClient builds a Graph client authenticated with the app's client
// credentials and paced by graph.requests_per_second. ctx bounds the token
// source.
func newGraphClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*graph.Client, error) {
	if err := config.RequireCredentials(cfg); err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cfg.Graph.TimeoutDuration())

	tokens := graph.NewClientCredentials(ctx, graph.AppCredentials{
		TenantID:     cfg.App.TenantID,
		ClientID:     cfg.App.ClientID,
		ClientSecret: cfg.App.ClientSecret,
	}, httpClient, logger)

	client := graph.NewClient(cfg.Graph.BaseURL, httpClient, tokens, logger, "graphsync/"+version)
	client.SetRateLimit(cfg.Graph.RequestsPerSecond, max(1, int(cfg.Graph.RequestsPerSecond)))

	return client, nil
}
