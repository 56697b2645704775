package sync

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/graphsync/internal/graph"
)

// LogSink writes one log line per changed item.
type LogSink struct {
	Logger *slog.Logger
}

// Apply implements ItemSink.
func (s LogSink) Apply(_ context.Context, items []graph.ChangedItem) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for i := range items {
		it := &items[i]
		logger.Info("directory object changed",
			slog.String("id", it.ID),
			slog.Bool("removed", it.Removed),
			slog.String("display_name", it.Attributes["displayName"]),
			slog.String("given_name", it.Attributes["givenName"]),
			slog.String("surname", it.Attributes["surname"]),
		)
	}

	return nil
}

// MultiSink applies items to each sink in order, stopping at the first
// error.
type MultiSink []ItemSink

// Apply implements ItemSink.
func (m MultiSink) Apply(ctx context.Context, items []graph.ChangedItem) error {
	for _, s := range m {
		if err := s.Apply(ctx, items); err != nil {
			return err
		}
	}

	return nil
}
