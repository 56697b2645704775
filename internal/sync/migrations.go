package sync

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateView brings the directory_objects schema up to date and returns
// the resulting schema version.
func migrateView(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	schema, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sync: loading view migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, schema)
	if err != nil {
		return 0, fmt.Errorf("sync: preparing view migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: migrating view schema: %w", err)
	}

	for _, r := range results {
		logger.Debug("view migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: reading view schema version: %w", err)
	}

	return version, nil
}
