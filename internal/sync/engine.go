// Package sync keeps the local directory view current by walking the Graph
// users delta query from a resumable cursor.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/graphsync/internal/graph"
)

// maxWalkPages bounds a single walk in case the server keeps returning
// nextLinks.
const maxWalkPages = 10000

// DeltaFetcher fetches one page of the users delta query.
type DeltaFetcher interface {
	UsersDelta(ctx context.Context, token string, selectFields []string) (*graph.DeltaPage, error)
}

// ItemSink consumes the items of each fetched page. An error aborts the
// walk, so the same items are delivered again by the next one.
type ItemSink interface {
	Apply(ctx context.Context, items []graph.ChangedItem) error
}

// Result describes a completed (or, alongside an error, partial) walk.
type Result struct {
	ItemsProcessed int       `json:"itemsProcessed"`
	Pages          int       `json:"pages"`
	CursorAdvanced bool      `json:"cursorAdvanced"`
	FullResync     bool      `json:"fullResync"`
	Coalesced      bool      `json:"coalesced"`
	CompletedAt    time.Time `json:"completedAt"`
}

// EngineStats is a snapshot of cumulative engine counters.
type EngineStats struct {
	Walks     int64 `json:"walks"`
	Failures  int64 `json:"failures"`
	Coalesced int64 `json:"coalesced"`
	Items     int64 `json:"items"`
}

// Engine owns the single delta cursor. Walks are serialized: a walk reads
// the cursor once at its start and replaces it once at its end, and only
// if every page succeeded.
type Engine struct {
	fetcher      DeltaFetcher
	sink         ItemSink
	selectFields []string
	logger       *slog.Logger
	nowFunc      func() time.Time

	// walkMu serializes walks.
	walkMu       stdsync.Mutex
	walksStarted atomic.Uint64

	// mu protects the fields below for concurrent readers.
	mu         stdsync.Mutex
	cursor     string
	hasCursor  bool
	lastResult Result
	lastErr    error
	lastWalkOK bool

	walks     atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64
	items     atomic.Int64
}

// NewEngine creates an engine with no cursor, so the first walk is a full
// enumeration.
func NewEngine(fetcher DeltaFetcher, sink ItemSink, selectFields []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		fetcher:      fetcher,
		sink:         sink,
		selectFields: selectFields,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// SyncFromCursor walks every page of changes since the stored cursor and
// stores the cursor carried by the terminal page. A caller that arrives
// while a walk is running waits for it; if a walk that began after the
// caller arrived has already succeeded by then, its result is returned
// instead of walking again.
func (e *Engine) SyncFromCursor(ctx context.Context) (Result, error) {
	arrival := e.walksStarted.Load()

	e.walkMu.Lock()
	defer e.walkMu.Unlock()

	if e.walksStarted.Load() > arrival {
		e.mu.Lock()
		ok, res := e.lastWalkOK, e.lastResult
		e.mu.Unlock()

		if ok {
			e.coalesced.Add(1)
			e.logger.Debug("sync request coalesced with completed walk")

			res.Coalesced = true

			return res, nil
		}
	}

	e.walksStarted.Add(1)
	e.walks.Add(1)

	cursor, hasCursor := e.Cursor()

	e.logger.Info("delta walk starting", slog.Bool("has_cursor", hasCursor))

	out, err := e.walk(ctx, cursor)

	fullResync := false

	if err != nil && hasCursor && errors.Is(err, graph.ErrGone) {
		e.logger.Warn("delta cursor expired, restarting walk from scratch",
			slog.String("error", err.Error()),
		)

		fullResync = true
		out, err = e.walk(ctx, "")
	}

	res := Result{
		ItemsProcessed: out.items,
		Pages:          out.pages,
		FullResync:     fullResync,
		CompletedAt:    e.nowFunc(),
	}

	e.items.Add(int64(out.items))

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.failures.Add(1)
		e.lastResult = res
		e.lastErr = err
		e.lastWalkOK = false

		e.logger.Error("delta walk aborted, cursor unchanged",
			slog.Int("pages", out.pages),
			slog.Int("items", out.items),
			slog.String("error", err.Error()),
		)

		return res, err
	}

	if out.deltaLink != "" {
		e.cursor = out.deltaLink
		e.hasCursor = true
		res.CursorAdvanced = true
	} else {
		e.logger.Warn("terminal delta page carried no cursor", slog.Int("pages", out.pages))
	}

	e.lastResult = res
	e.lastErr = nil
	e.lastWalkOK = true

	e.logger.Info("delta walk complete",
		slog.Int("pages", out.pages),
		slog.Int("items", out.items),
		slog.Bool("cursor_advanced", res.CursorAdvanced),
		slog.Bool("full_resync", fullResync),
	)

	return res, nil
}

type walkOutcome struct {
	pages     int
	items     int
	deltaLink string
}

// walk fetches pages strictly in order starting from token.
func (e *Engine) walk(ctx context.Context, token string) (walkOutcome, error) {
	var out walkOutcome

	for page := 1; page <= maxWalkPages; page++ {
		dp, err := e.fetcher.UsersDelta(ctx, token, e.selectFields)
		if err != nil {
			return out, fmt.Errorf("sync: fetching delta page %d: %w", page, err)
		}

		if len(dp.Items) > 0 {
			if err := e.sink.Apply(ctx, dp.Items); err != nil {
				return out, fmt.Errorf("sync: applying delta page %d: %w", page, err)
			}
		}

		out.pages = page
		out.items += len(dp.Items)

		e.logger.Debug("delta page processed",
			slog.Int("page", page),
			slog.Int("page_items", len(dp.Items)),
			slog.Int("total_items", out.items),
		)

		if dp.NextLink == "" {
			out.deltaLink = dp.DeltaLink
			return out, nil
		}

		token = dp.NextLink
	}

	return out, fmt.Errorf("sync: exceeded maximum page count (%d)", maxWalkPages)
}

// Cursor returns the stored cursor and whether one exists.
func (e *Engine) Cursor() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cursor, e.hasCursor
}

// LastResult returns the most recent walk's result and error. Both are
// zero before the first walk.
func (e *Engine) LastResult() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastResult, e.lastErr
}

// Stats returns cumulative counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Walks:     e.walks.Load(),
		Failures:  e.failures.Load(),
		Coalesced: e.coalesced.Load(),
		Items:     e.items.Load(),
	}
}
