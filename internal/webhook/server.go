package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/graphsync/internal/graph"
	"github.com/tonimelisma/graphsync/internal/subscription"
	"github.com/tonimelisma/graphsync/internal/sync"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Subscriber creates and lists subscriptions.
type Subscriber interface {
	ClientStateVerifier
	Create(ctx context.Context, req subscription.CreateRequest) (subscription.Subscription, error)
	List() []subscription.Subscription
}

// SyncEngine is the engine surface the server needs.
type SyncEngine interface {
	Syncer
	Cursor() (string, bool)
	LastResult() (sync.Result, error)
	Stats() sync.EngineStats
}

// ObjectStore is the read side of the local directory view.
type ObjectStore interface {
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id string) (sync.Object, bool, error)
}

// SchedulerStatus reports renewal loop state.
type SchedulerStatus interface {
	Running() bool
	Stats() subscription.SchedulerStats
}

// ServerConfig holds listener and subscription settings.
type ServerConfig struct {
	ListenAddr      string
	WebhookPath     string
	NotificationURL string
	Resource        string
	ChangeType      string
	Lifetime        time.Duration
}

// Server exposes the webhook and the operator endpoints.
type Server struct {
	cfg        ServerConfig
	subs       Subscriber
	engine     SyncEngine
	scheduler  SchedulerStatus
	objects    ObjectStore
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewServer wires the handlers. scheduler and objects may be nil.
func NewServer(
	cfg ServerConfig,
	subs Subscriber,
	engine SyncEngine,
	scheduler SchedulerStatus,
	objects ObjectStore,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}

	return &Server{
		cfg:        cfg,
		subs:       subs,
		engine:     engine,
		scheduler:  scheduler,
		objects:    objects,
		dispatcher: NewDispatcher(engine, subs, logger),
		logger:     logger,
	}
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+s.cfg.WebhookPath, s.dispatcher)
	mux.HandleFunc("GET /subscribe", s.handleSubscribe)
	mux.HandleFunc("GET /subscriptions", s.handleSubscriptions)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /objects/{id}", s.handleObject)

	return mux
}

// SubscribeResponse is returned by GET /subscribe.
type SubscribeResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subs.Create(r.Context(), subscription.CreateRequest{
		Resource:        s.cfg.Resource,
		ChangeType:      s.cfg.ChangeType,
		NotificationURL: s.cfg.NotificationURL,
		Lifetime:        s.cfg.Lifetime,
	})
	if err != nil {
		status := http.StatusBadGateway
		if graph.IsAuthFailure(err) {
			status = http.StatusServiceUnavailable
		}

		s.logger.Error("subscription request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, "subscription failed", status)

		return
	}

	writeJSON(w, http.StatusOK, SubscribeResponse{ID: sub.ID, ExpiresAt: sub.ExpiresAt})
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.subs.List())
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	CursorPresent    bool                         `json:"cursorPresent"`
	LastSync         *sync.Result                 `json:"lastSync,omitempty"`
	LastSyncError    string                       `json:"lastSyncError,omitempty"`
	Engine           sync.EngineStats             `json:"engine"`
	Dispatcher       DispatcherStats              `json:"dispatcher"`
	Subscriptions    int                          `json:"subscriptions"`
	SchedulerRunning bool                         `json:"schedulerRunning"`
	Scheduler        *subscription.SchedulerStats `json:"scheduler,omitempty"`
	Objects          *int                         `json:"objects,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, hasCursor := s.engine.Cursor()

	resp := StatusResponse{
		CursorPresent: hasCursor,
		Engine:        s.engine.Stats(),
		Dispatcher:    s.dispatcher.Stats(),
		Subscriptions: len(s.subs.List()),
	}

	if resp.Engine.Walks > 0 {
		last, err := s.engine.LastResult()
		resp.LastSync = &last

		if err != nil {
			resp.LastSyncError = err.Error()
		}
	}

	if s.scheduler != nil {
		st := s.scheduler.Stats()
		resp.SchedulerRunning = s.scheduler.Running()
		resp.Scheduler = &st
	}

	if s.objects != nil {
		n, err := s.objects.Count(r.Context())
		if err != nil {
			s.logger.Warn("counting view objects", slog.String("error", err.Error()))
		} else {
			resp.Objects = &n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		http.Error(w, "no local view", http.StatusNotFound)
		return
	}

	id := r.PathValue("id")

	obj, ok, err := s.objects.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("reading view object",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "reading local view failed", http.StatusInternalServerError)

		return
	}

	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, obj)
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("webhook: binding %s: %w", s.cfg.ListenAddr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("webhook server listening",
		slog.String("addr", listener.Addr().String()),
		slog.String("webhook_path", s.cfg.WebhookPath),
		slog.String("notification_url", s.cfg.NotificationURL),
	)

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("webhook: server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook: shutting down: %w", err)
	}

	s.logger.Info("webhook server stopped")

	return nil
}
