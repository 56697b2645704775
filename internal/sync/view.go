package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/tonimelisma/graphsync/internal/graph"
)

const (
	sqlSelectAttributes = `SELECT attributes FROM directory_objects WHERE id = ?`

	sqlUpsertObject = `INSERT INTO directory_objects (id, attributes, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 attributes = excluded.attributes,
		 synced_at = excluded.synced_at`

	sqlDeleteObject = `DELETE FROM directory_objects WHERE id = ?`

	sqlCountObjects = `SELECT COUNT(*) FROM directory_objects`
)

// memoryDSN keeps the view in a private in-memory database. The pool is
// capped at one connection, so the database lives as long as the View.
const memoryDSN = ":memory:"

// Object is one directory object as stored in the view.
type Object struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	SyncedAt   time.Time         `json:"syncedAt"`
}

// View is a local SQLite replica of the directory objects seen through
// the delta query. It implements ItemSink; each page is applied in one
// transaction so a failed page leaves no partial state behind.
type View struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenView opens (or creates) the view at dbPath and runs migrations. An
// empty dbPath keeps the view in memory.
func OpenView(ctx context.Context, dbPath string, logger *slog.Logger) (*View, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := memoryDSN
	if dbPath != "" {
		// DSN parameters ensure pragmas apply to every connection from the pool.
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
				"&_pragma=busy_timeout(5000)&_pragma=journal_size_limit(67108864)",
			dbPath,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening view database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	schema, err := migrateView(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("directory view opened",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", schema),
	)

	return &View{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Apply writes one page of changes. Updates merge into the stored
// attributes, because the delta query only returns properties that
// changed; removed items are deleted.
func (v *View) Apply(ctx context.Context, items []graph.ChangedItem) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning view transaction: %w", err)
	}
	defer tx.Rollback()

	syncedAt := v.nowFunc().UnixNano()

	var upserted, deleted int

	for i := range items {
		it := &items[i]

		if it.Removed {
			if _, err := tx.ExecContext(ctx, sqlDeleteObject, it.ID); err != nil {
				return fmt.Errorf("sync: deleting %s: %w", it.ID, err)
			}

			deleted++

			continue
		}

		if err := upsertObject(ctx, tx, it, syncedAt); err != nil {
			return err
		}

		upserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing view transaction: %w", err)
	}

	v.logger.Debug("view page applied",
		slog.Int("upserted", upserted),
		slog.Int("deleted", deleted),
	)

	return nil
}

func upsertObject(ctx context.Context, tx *sql.Tx, it *graph.ChangedItem, syncedAt int64) error {
	merged := make(map[string]string)

	var raw string

	err := tx.QueryRowContext(ctx, sqlSelectAttributes, it.ID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("sync: reading %s: %w", it.ID, err)
	default:
		if err := json.Unmarshal([]byte(raw), &merged); err != nil {
			return fmt.Errorf("sync: decoding stored attributes for %s: %w", it.ID, err)
		}
	}

	for k, val := range it.Attributes {
		merged[k] = val
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("sync: encoding attributes for %s: %w", it.ID, err)
	}

	if _, err := tx.ExecContext(ctx, sqlUpsertObject, it.ID, string(encoded), syncedAt); err != nil {
		return fmt.Errorf("sync: upserting %s: %w", it.ID, err)
	}

	return nil
}

// Get returns the stored object, or false if the view has none with id.
func (v *View) Get(ctx context.Context, id string) (Object, bool, error) {
	var (
		raw      string
		syncedAt int64
	)

	err := v.db.QueryRowContext(ctx,
		`SELECT attributes, synced_at FROM directory_objects WHERE id = ?`, id,
	).Scan(&raw, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, false, nil
	}

	if err != nil {
		return Object{}, false, fmt.Errorf("sync: reading %s: %w", id, err)
	}

	obj := Object{ID: id, SyncedAt: time.Unix(0, syncedAt).UTC()}
	if err := json.Unmarshal([]byte(raw), &obj.Attributes); err != nil {
		return Object{}, false, fmt.Errorf("sync: decoding attributes for %s: %w", id, err)
	}

	return obj, true, nil
}

// Count returns the number of objects in the view.
func (v *View) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, sqlCountObjects).Scan(&n); err != nil {
		return 0, fmt.Errorf("sync: counting objects: %w", err)
	}

	return n, nil
}

// Close releases the database.
func (v *View) Close() error {
	return v.db.Close()
}
